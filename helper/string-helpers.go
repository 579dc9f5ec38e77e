package helper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	om "github.com/cevaris/ordered_map"
	"github.com/relloyd/sunglass-etl/constants"
)

// StringSliceToOrderedMap adds each value in s to an ordered map with key and value set to the value in s.
func StringSliceToOrderedMap(s []string) *om.OrderedMap {
	retval := om.NewOrderedMap()
	for _, v := range s {
		retval.Set(v, v)
	}
	return retval
}

// GetStringFromInterface will convert interface{} value to a string.
// Optionally return Times in UTC.
func GetStringFromInterface(input interface{}, useUTC bool) (retval string, err error) {
	switch v := input.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		retval = fmt.Sprintf("%d", v)
	case string:
		retval = v
	case float32:
		retval = strconv.FormatFloat(float64(v), 'f', -1, 32) // 'f' preserves all decimal points without an exponent.
	case float64:
		retval = strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		if useUTC {
			retval = v.UTC().Format(constants.TimeFormatYearSecondsTZ)
		} else {
			retval = v.Format(constants.TimeFormatYearSecondsTZ)
		}
	case []uint8:
		retval = string(v)
	case bool:
		retval = strconv.FormatBool(v)
	case nil:
		retval = ""
	default:
		err = fmt.Errorf("unhandled type while fetching string from interface: type = %T; value = %v", input, input)
	}
	return
}

// MustGetStringFromInterface is GetStringFromInterface for values already normalised by the schema registry.
func MustGetStringFromInterface(input interface{}) string {
	s, err := GetStringFromInterface(input, true)
	if err != nil {
		panic(err)
	}
	return s
}

// GetTrueFalseStringAsBool trims spaces from s and checks if it matches "true", "yes", "y" or "1".
func GetTrueFalseStringAsBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}

var reNonIdentifierChars = regexp.MustCompile(`[^a-z0-9_]+`)

// ToSnakeCase normalises identifiers such as table names: "interactionTypes" becomes "interaction_types".
func ToSnakeCase(s string) string {
	b := strings.Builder{}
	runes := []rune(strings.TrimSpace(s))
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return strings.Trim(reNonIdentifierChars.ReplaceAllString(b.String(), "_"), "_")
}

// JoinLocation concatenates a base storage location and a relative path, inserting a "/" when neither side
// supplies one.
func JoinLocation(base string, relative string) string {
	if base == "" {
		return relative
	}
	if relative == "" {
		return base
	}
	if strings.HasSuffix(base, "/") || strings.HasPrefix(relative, "/") {
		return base + relative
	}
	return base + "/" + relative
}

// Function to get a string "tgt.col1 = $1, tgt.col2 = $2" using the column list supplied
// and a placeholder generator.
func GenerateStringOfColsEqualsPlaceholders(colList []string, placeholder func(int) string, offset int, separator string) string {
	retval := make([]string, len(colList))
	for idx, col := range colList {
		retval[idx] = fmt.Sprintf("%s = %s", col, placeholder(idx+offset+1))
	}
	return strings.Join(retval, separator)
}
