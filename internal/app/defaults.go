package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	envConfigPath = "PHOTODB_CONFIG_PATH"
	envHome       = "PHOTODB_HOME"
)

// Defaults holds the locations photodb uses when no flag overrides them.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults resolves the default locations. PHOTODB_CONFIG_PATH replaces
// ~/.config/photodb.toml and PHOTODB_HOME replaces ~/.local/share/photodb.
func GetDefaults() (Defaults, error) {
	var d Defaults
	var err error
	if d.ConfigPath, err = envOrHome(envConfigPath, ".config", "photodb.toml"); err != nil {
		return Defaults{}, err
	}
	if d.BaseDir, err = envOrHome(envHome, ".local", "share", "photodb"); err != nil {
		return Defaults{}, err
	}
	d.LogDir = filepath.Join(d.BaseDir, "log")
	return d, nil
}

// envOrHome returns the value of env, or elems joined under the user's home.
func envOrHome(env string, elems ...string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving %s: no home directory: %w", env, err)
	}
	return filepath.Join(append([]string{home}, elems...)...), nil
}
