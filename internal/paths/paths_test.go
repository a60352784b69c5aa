package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".wpprelay", "instances", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestDataDirFiles(t *testing.T) {
	dir := Dir("test")
	if got := DBPath(dir); got != filepath.Join(dir, "relay.db") {
		t.Errorf("DBPath = %q", got)
	}
	got := LogPath(dir)
	if !strings.HasSuffix(got, filepath.Join("instances", "test", "logs", "wpprelayd.log")) {
		t.Errorf("LogPath = %q, want suffix instances/test/logs/wpprelayd.log", got)
	}
}

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestResolveConfig(t *testing.T) {
	tests := []struct {
		name string
		flag string
		env  map[string]string
		want string
	}{
		{"flag wins", "/etc/relay.toml", map[string]string{"WPPRELAY_CONFIG": "/env.toml"}, "/etc/relay.toml"},
		{"env", "", map[string]string{"WPPRELAY_CONFIG": "/env.toml"}, "/env.toml"},
		{"empty env ignored", "", map[string]string{"WPPRELAY_CONFIG": ""}, ConfigPath()},
		{"default", "", nil, ConfigPath()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveConfig(tt.flag, env(tt.env)); got != tt.want {
				t.Errorf("ResolveConfig() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveInstance(t *testing.T) {
	if got := ResolveInstance("work", env(map[string]string{"WPPRELAY_INSTANCE": "env"})); got != "work" {
		t.Errorf("flag: got %q", got)
	}
	if got := ResolveInstance("", env(map[string]string{"WPPRELAY_INSTANCE": "env"})); got != "env" {
		t.Errorf("env: got %q", got)
	}
	if got := ResolveInstance("", env(nil)); got != DefaultInstance {
		t.Errorf("default: got %q", got)
	}
}
