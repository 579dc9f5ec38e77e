package helper

import (
	"fmt"
	"reflect"
	"strings"
)

// ValidateStructIsPopulated will check if any mandatory fields in cfg are missing.
// It uses struct tags to determine which fields are mandatory and the error text to fetch.
// The error text returned is just a list of the struct tags with key "errorTxt".
func ValidateStructIsPopulated(cfg interface{}) (err error) {
	errs := MissingMandatoryFields(cfg)
	if len(errs) > 0 {
		err = fmt.Errorf("please supply values for %v", strings.Join(errs, ", "))
	}
	return
}

// MissingMandatoryFields returns the errorTxt tag values of all fields tagged mandatory:"yes" that hold their
// zero value, in field order.
func MissingMandatoryFields(cfg interface{}) []string {
	errs := make([]string, 0)
	GetStructErrorTxt4UnsetFields(cfg, &errs)
	return errs
}

// GetStructErrorTxt4UnsetFields will reflect over interface i and build a slice containing error text strings for any
// struct fields that are unset i.e. are the zero value for the given field type.
// The error text strings are fetched from the errorTxt tags values found in the supplied interface (struct)
// where tag mandatory:"yes" is set.
func GetStructErrorTxt4UnsetFields(i interface{}, errTags *[]string) {
	val := reflect.ValueOf(i)
	if reflect.TypeOf(i).Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()
	for idx := 0; idx < val.NumField(); idx++ { // for each field in the value/struct...
		f := val.Field(idx)
		if !typ.Field(idx).IsExported() {
			continue
		}
		switch f.Type().Kind() {
		case reflect.Struct: // descend into nested structs.
			GetStructErrorTxt4UnsetFields(f.Interface(), errTags)
		case reflect.Map:
			for _, v := range f.MapKeys() {
				mapVal := f.MapIndex(v)
				if mapVal.Type().Kind() == reflect.Struct && !mapVal.IsZero() {
					GetStructErrorTxt4UnsetFields(mapVal.Interface(), errTags)
				}
			}
		case reflect.Slice, reflect.Ptr, reflect.Interface, reflect.Func:
		default:
			if f.IsZero() && typ.Field(idx).Tag.Get("mandatory") == "yes" {
				*errTags = append(*errTags, typ.Field(idx).Tag.Get("errorTxt"))
			}
		}
	}
}
