package xdg

import "path/filepath"

// PathResolver resolves the per-user paths a command reads and writes.
// Loaders take one so tests can point them at a throwaway home.
type PathResolver interface {
	GlobalConfigFile() string
	StateDir() string
	CrashDir() string
}

// DefaultResolver returns a PathResolver over the real XDG environment.
func DefaultResolver() PathResolver {
	return defaultResolver{}
}

type defaultResolver struct{}

func (defaultResolver) GlobalConfigFile() string { return GlobalConfigFile() }
func (defaultResolver) StateDir() string { return StateDir() }
func (defaultResolver) CrashDir() string { return CrashDir() }

// ResolverFor returns a PathResolver rooted at homeDir that ignores the
// XDG variables.
func ResolverFor(homeDir string) PathResolver {
	return homeResolver(homeDir)
}

type homeResolver string

func (h homeResolver) GlobalConfigFile() string {
	return filepath.Join(string(h), ".config", appName, "config.toml")
}

func (h homeResolver) StateDir() string {
	return filepath.Join(string(h), ".local", "state", appName)
}

func (h homeResolver) CrashDir() string {
	return filepath.Join(h.StateDir(), "crashes")
}
