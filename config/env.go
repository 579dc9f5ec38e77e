package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	c "github.com/relloyd/sunglass-etl/constants"
)

// DefaultEnvFiles are tried in order when no env file is named: the working directory, then its parent.
var DefaultEnvFiles = []string{".env", "../.env"}

// LoadEnvFiles loads variables from the first env file that exists. Variables already set in the process
// environment are not overridden. A named file that does not exist is an error; missing defaults are not.
func LoadEnvFiles(named string) (loaded string, err error) {
	candidates := DefaultEnvFiles
	if named != "" {
		if _, err = os.Stat(named); err != nil {
			return "", errors.Wrapf(err, "env file %v", named)
		}
		candidates = []string{named}
	}
	for _, f := range candidates {
		if _, err = os.Stat(f); err != nil {
			continue
		}
		if err = godotenv.Load(f); err != nil {
			return "", errors.Wrapf(err, "error loading env file %v", f)
		}
		return f, nil
	}
	return "", nil
}

// pipelinesDir expands a leading ~ in dir, defaulting to the pipelines dir under the home directory.
func pipelinesDir(dir string) (string, error) {
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, filepath.FromSlash(c.DefaultPipelinesDir)), nil
	}
	return homedir.Expand(dir)
}
