package paths

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wpprelay.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wpprelay")
}

// Dir returns the instance-specific data directory.
func Dir(instance string) string {
	return filepath.Join(BaseDir(), "instances", instance)
}

// DBPath returns the default SQLite message store path inside a data dir.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "relay.db")
}

// LogPath returns the default daemon log file path inside a data dir.
func LogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs", "wpprelayd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}
