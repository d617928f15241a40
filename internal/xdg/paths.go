// Package xdg locates the files hookgate keeps outside a project, following
// the XDG Base Directory layout. Project-local config files are found by
// internal/config.
package xdg

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	appName = "hookgate"

	// dirMode is applied to every directory hookgate creates.
	dirMode os.FileMode = 0o700
)

// baseDir returns $env, or fallback under the home directory. When the
// home directory is unknown the fallback stays relative to "~".
func baseDir(env string, fallback ...string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "~"
	}

	return filepath.Join(append([]string{home}, fallback...)...)
}

// ConfigHome returns $XDG_CONFIG_HOME or ~/.config.
func ConfigHome() string { return baseDir("XDG_CONFIG_HOME", ".config") }

// DataHome returns $XDG_DATA_HOME or ~/.local/share.
func DataHome() string { return baseDir("XDG_DATA_HOME", ".local", "share") }

// StateHome returns $XDG_STATE_HOME or ~/.local/state.
func StateHome() string { return baseDir("XDG_STATE_HOME", ".local", "state") }

// ConfigDir returns ConfigHome()/hookgate.
func ConfigDir() string { return filepath.Join(ConfigHome(), appName) }

// DataDir returns DataHome()/hookgate.
func DataDir() string { return filepath.Join(DataHome(), appName) }

// StateDir returns StateHome()/hookgate. Logs, audit records and crash
// dumps live here.
func StateDir() string { return filepath.Join(StateHome(), appName) }

// GlobalConfigFile returns ConfigDir()/config.toml.
func GlobalConfigFile() string { return filepath.Join(ConfigDir(), "config.toml") }

// LogFile returns $HOOKGATE_LOG_FILE or StateDir()/hookgate.log.
func LogFile() string {
	if v := os.Getenv("HOOKGATE_LOG_FILE"); v != "" {
		return v
	}

	return filepath.Join(StateDir(), "hookgate.log")
}

// AuditFile returns the default audit file for the given backend:
// StateDir()/audit.db for sqlite, StateDir()/audit.jsonl otherwise.
func AuditFile(backend string) string {
	if backend == "sqlite" {
		return filepath.Join(StateDir(), "audit.db")
	}

	return filepath.Join(StateDir(), "audit.jsonl")
}

// CrashDir returns StateDir()/crashes, where panic dumps are written.
func CrashDir() string { return filepath.Join(StateDir(), "crashes") }

// HooksDir returns DataDir()/hooks, where "hookgate init" suggests
// installing hook programs.
func HooksDir() string { return filepath.Join(DataDir(), "hooks") }

// ExpandPath resolves a leading "~" or "~/" to the home directory. Other
// paths are returned unchanged; "~user" forms are rejected.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	rest, ok := strings.CutPrefix(path[1:], "/")
	if !ok && path != "~" {
		return "", errors.Newf("paths starting with ~ must be either ~ or ~/subdir, got %q", path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}

	return filepath.Join(home, rest), nil
}

// EnsureDir creates path with 0700 permissions, tightening an existing
// directory that is more open.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, dirMode); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat directory %s", path)
	}

	if info.Mode().Perm() == dirMode {
		return nil
	}

	return errors.Wrapf(os.Chmod(path, dirMode), "failed to set permissions on %s", path)
}
