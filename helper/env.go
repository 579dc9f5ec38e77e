package helper

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadValueFromEnv will read the env var called name and populate the supplied val.
// If the env var is not set then return an error.
func ReadValueFromEnv(name string, val *string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v != "" {
		*val = v
		return nil
	}
	return fmt.Errorf("value for environment variable %v not found", name)
}

// ReadValueFromEnvWithDefault will read the value of name from the environment into v.
// If it's not set then it will apply the supplied defaultValue and return v.
func ReadValueFromEnvWithDefault(name string, defaultValue string) (v string) {
	_ = ReadValueFromEnv(name, &v)
	if v == "" && defaultValue != "" {
		v = defaultValue
	}
	return
}

// ReadBoolFromEnvWithDefault reads a true/false env var, falling back to defaultValue when unset.
func ReadBoolFromEnvWithDefault(name string, defaultValue bool) bool {
	var v string
	if err := ReadValueFromEnv(name, &v); err != nil {
		return defaultValue
	}
	return GetTrueFalseStringAsBool(v)
}

// ReadIntFromEnvWithDefault reads an integer env var, falling back to defaultValue when unset.
func ReadIntFromEnvWithDefault(name string, defaultValue int) (int, error) {
	var v string
	if err := ReadValueFromEnv(name, &v); err != nil {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %v must be an integer: %w", name, err)
	}
	return i, nil
}
