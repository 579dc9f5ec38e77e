package cmd

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/helper"
	"github.com/spf13/pflag"
)

type cliFlag struct {
	name      string // name of flag
	val       string // default value
	shortHand string // single character name for the flag
	desc      string // description of the flag; the long text
}

type cliFlags map[string]cliFlag

var switches = cliFlags{
	"mock": cliFlag{name: "mock", shortHand: "m", desc: "mock switch for testing"},
	"log-level": cliFlag{name: "log-level", shortHand: "l",
		desc: "Log level: \"error | warn | info | debug | trace\" (default: LOG_LEVEL or info)"},
	"env-file": cliFlag{name: "env-file", shortHand: "e",
		desc: "File of KEY=value lines loaded into the environment before the configuration is read \n" +
			"(default: .env then ../.env). Variables already set are not overridden"},
	"stack-dump": cliFlag{name: "stack-dump", shortHand: "",
		desc: "Print a stack dump with errors and if there is a panic"},
	"port": cliFlag{name: "port", shortHand: "p",
		desc: "Port to listen on"},
}

// addFlag adds a flag to the flag set fs, based on the type of targetVar (which must be a pointer).
// The name of the flag is looked up in map, cliFlags.
// When running in twelveFactorMode, the targetVar is populated using the value of the environment variable for the
// supplied name, or if not set then the supplied default value is used.
// Supply a value for desc2 to append to the existing description found in map cliFlags.
func (f *cliFlags) addFlag(fs *pflag.FlagSet, targetVar interface{}, name string, defaultValue string, desc2 string) {
	v := reflect.ValueOf(targetVar)
	if v.Kind() != reflect.Ptr {
		fmt.Println("error adding flag: targetVar must be a pointer")
		os.Exit(1)
	}
	sw := f.getCliFlag(name, defaultValue)
	desc := sw.desc + desc2
	switch p := targetVar.(type) {
	case *string:
		if twelveFactorMode {
			*p = sw.val
		} else {
			fs.StringVarP(p, sw.name, sw.shortHand, sw.val, desc)
		}
	case *bool:
		b := helper.GetTrueFalseStringAsBool(sw.val)
		if twelveFactorMode {
			*p = b
		} else {
			fs.BoolVarP(p, sw.name, sw.shortHand, b, desc)
		}
	case *int:
		defaultInt, err := strconv.Atoi(sw.val)
		if err != nil {
			fmt.Printf("the value for flag %q must be an integer: %v\n", sw.name, err)
			os.Exit(1)
		}
		if twelveFactorMode {
			*p = defaultInt
		} else {
			fs.IntVarP(p, sw.name, sw.shortHand, defaultInt, desc)
		}
	default:
		panic("Error: unhandled CLI flag target value type")
	}
}

// getCliFlag fetches the value of name from the environment when running in twelveFactorMode.
// If a value cannot be found then use the supplied defaultValue in its place.
func (f *cliFlags) getCliFlag(name string, defaultValue string) cliFlag {
	s, ok := (*f)[name]
	if !ok {
		panic(fmt.Sprintf("unregistered CLI flag, %q", name))
	}
	s.val = defaultValue
	if twelveFactorMode {
		var v string
		if err := helper.ReadValueFromEnv(flagNameToEnvVar(name), &v); err == nil {
			s.val = v
		}
	}
	return s
}

// flagNameToEnvVar will form a sanitised environment variable name using constants.EnvVarPrefix.
func flagNameToEnvVar(name string) string {
	return constants.EnvVarPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
