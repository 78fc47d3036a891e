package config

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the directory holding config, logs and reports.
const HomeEnv = "COLLABGEN_HOME"

// defaultHome is used when HomeEnv is unset, relative to the working directory.
const defaultHome = ".collabgen"

// HomeDir returns $COLLABGEN_HOME if set, otherwise ".collabgen".
func HomeDir() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	return defaultHome
}

// DefaultConfigPath returns the config file inside HomeDir.
func DefaultConfigPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

// defaultStoragePath returns the report location for driver inside HomeDir.
func defaultStoragePath(driver string) string {
	if driver == DriverFile {
		return filepath.Join(HomeDir(), "reports")
	}
	return filepath.Join(HomeDir(), "reports.db")
}
