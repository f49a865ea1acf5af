// Package common provides constants shared by the jetta library packages
// and the command line.
package common

import (
	"os"
	"path/filepath"
)

// Environment variable names for configuration.
const (
	// ConfigDirEnv overrides the directory holding config.yaml, the
	// encrypted cookie jar and the public suffix cache.
	ConfigDirEnv = "JETTA_CONFIG_DIR"

	// DebugEnv is the environment variable to enable debug logging.
	DebugEnv = "JETTA_DEBUG"

	// LogFormatEnv selects "text" or "json" log output.
	LogFormatEnv = "JETTA_LOG_FORMAT"

	// ProxyEnv sets a proxy URL for every request.
	ProxyEnv = "JETTA_PROXY"

	// JarKeyEnv supplies the cookie jar encryption key as hex, bypassing
	// the OS keyring.
	JarKeyEnv = "JETTA_JAR_KEY"
)

// ConfigDir returns $JETTA_CONFIG_DIR, or "jetta" under the user config
// directory. The directory is not created.
func ConfigDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return filepath.Abs(dir)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "jetta"), nil
}
