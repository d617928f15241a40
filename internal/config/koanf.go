package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	tomlparser "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/smykla-skalski/hookgate/internal/xdg"
	"github.com/smykla-skalski/hookgate/pkg/config"
)

var (
	// ErrInvalidTOML is returned when the TOML file cannot be parsed.
	ErrInvalidTOML = errors.New("invalid TOML")

	// ErrInvalidPermissions is returned when config file has insecure permissions.
	ErrInvalidPermissions = errors.New("config file has insecure permissions")
)

const (
	// ProjectConfigDir is the directory name for project configuration.
	ProjectConfigDir = ".hookgate"

	// ProjectConfigFile is the primary project configuration file name.
	ProjectConfigFile = "config.toml"

	// ProjectConfigFileAlt is the alternative project configuration file name.
	ProjectConfigFileAlt = "hookgate.toml"

	// EnvPrefix prefixes every environment variable the loader reads.
	EnvPrefix = "HOOKGATE_"

	// envPathSeparator separates config path segments in variable names,
	// so single underscores can stay inside keys:
	// HOOKGATE_HOOKS__DEFAULT_TIMEOUT -> hooks.default_timeout.
	envPathSeparator = "__"

	definitionsPath = "hooks.definitions"
)

// KoanfLoader handles configuration loading from multiple sources using koanf.
// Precedence order (highest to lowest):
// 1. CLI Flags
// 2. Environment Variables (HOOKGATE_*)
// 3. Project Config (.hookgate/config.toml or hookgate.toml)
// 4. Global Config ($XDG_CONFIG_HOME/hookgate/config.toml)
// 5. Defaults
type KoanfLoader struct {
	mu       sync.Mutex
	k        *koanf.Koanf
	paths    xdg.PathResolver
	workDir  string
	flags    map[string]any
	sources  []string
	tomlOpts koanf.UnmarshalConf
}

// NewKoanfLoader creates a new KoanfLoader with default directories.
func NewKoanfLoader() (*KoanfLoader, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get working directory")
	}

	return newKoanfLoader(xdg.DefaultResolver(), workDir), nil
}

// NewKoanfLoaderWithDirs creates a new KoanfLoader with custom directories (for testing).
// The global config is looked up under homeDir/.config/hookgate.
func NewKoanfLoaderWithDirs(homeDir, workDir string) (*KoanfLoader, error) {
	return newKoanfLoader(xdg.ResolverFor(homeDir), workDir), nil
}

func newKoanfLoader(paths xdg.PathResolver, workDir string) *KoanfLoader {
	return &KoanfLoader{
		k:       koanf.New("."),
		paths:   paths,
		workDir: workDir,
		tomlOpts: koanf.UnmarshalConf{
			Tag:       "koanf",
			FlatPaths: false,
		},
	}
}

// Load loads configuration from all sources with precedence and validates it.
// Defaults → Global TOML → Project TOML → Env Vars → CLI Flags
//
// Hook definitions have special merge semantics:
// - Definitions with the same name: project overrides global
// - Definitions with different names: combined, global first
func (l *KoanfLoader) Load(flags map[string]any) (*config.Config, error) {
	cfg, err := l.LoadWithoutValidation(flags)
	if err != nil {
		return nil, err
	}

	if err := NewValidator().Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return cfg, nil
}

// Reload repeats the last Load with the same flags.
func (l *KoanfLoader) Reload() (*config.Config, error) {
	l.mu.Lock()
	flags := l.flags
	l.mu.Unlock()

	return l.Load(flags)
}

// LoadWithoutValidation loads configuration without running validation.
// This is useful for tools that need to inspect invalid configurations.
func (l *KoanfLoader) LoadWithoutValidation(flags map[string]any) (*config.Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.k = koanf.New(".")
	l.flags = flags
	l.sources = nil

	// 1. Defaults (lowest priority)
	if err := l.k.Load(confmap.Provider(defaultsToMap(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}

	// 2. Global config
	globalDefs, err := l.loadTOMLFile(l.GlobalConfigPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "failed to load global config")
	}

	// 3. Project config
	var projectDefs []*config.HookConfig

	if projectPath := l.findProjectConfig(); projectPath != "" {
		projectDefs, err = l.loadTOMLFile(projectPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load project config")
		}
	}

	// 4. Environment variables
	envOpt := env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: l.envTransform,
	}

	if err := l.k.Load(env.Provider(".", envOpt), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load env vars")
	}

	// 5. CLI flags (highest priority)
	if len(flags) > 0 {
		if err := l.k.Load(confmap.Provider(l.flagsToConfig(flags), "."), nil); err != nil {
			return nil, errors.Wrap(err, "failed to load flags")
		}
	}

	var cfg config.Config
	if err := l.unmarshal(l.k, "", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	cfg.GetHooks().Definitions = mergeDefinitions(globalDefs, projectDefs)

	return &cfg, nil
}

// unmarshal decodes path of k into out with the custom decode hooks.
func (l *KoanfLoader) unmarshal(k *koanf.Koanf, path string, out any) error {
	opts := l.tomlOpts
	opts.DecoderConfig = decoderConfig()
	opts.DecoderConfig.Result = out

	return k.UnmarshalWithConf(path, out, opts)
}

// loadTOMLFile loads a TOML configuration file with security checks, merges
// it into the loader state and returns the file's own hook definitions.
func (l *KoanfLoader) loadTOMLFile(path string) ([]*config.HookConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	// Security check: reject world-writable files
	if info.Mode().Perm()&0o002 != 0 {
		return nil, errors.Wrapf(
			ErrInvalidPermissions,
			"%s is world-writable (mode: %s)",
			path,
			info.Mode().Perm(),
		)
	}

	fk := koanf.New(".")
	if err := fk.Load(file.Provider(path), tomlparser.Parser()); err != nil {
		return nil, errors.Wrapf(ErrInvalidTOML, "%s: %v", path, err)
	}

	var defs []*config.HookConfig
	if fk.Exists(definitionsPath) {
		if err := l.unmarshal(fk, definitionsPath, &defs); err != nil {
			return nil, errors.Wrapf(err, "%s: failed to decode hook definitions", path)
		}
	}

	if err := l.k.Merge(fk); err != nil {
		return nil, errors.Wrapf(err, "%s: failed to merge", path)
	}

	l.sources = append(l.sources, path)

	return defs, nil
}

// envTransform transforms environment variable names to config paths.
// HOOKGATE_HOOKS__DEFAULT_TIMEOUT → hooks.default_timeout
func (*KoanfLoader) envTransform(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, envPathSeparator, ".")

	return key, value
}

// GlobalConfigPath returns the path to the global configuration file.
func (l *KoanfLoader) GlobalConfigPath() string {
	return l.paths.GlobalConfigFile()
}

// ProjectConfigPaths returns the paths to check for project configuration.
func (l *KoanfLoader) ProjectConfigPaths() []string {
	return []string{
		filepath.Join(l.workDir, ProjectConfigDir, ProjectConfigFile),
		filepath.Join(l.workDir, ProjectConfigFileAlt),
	}
}

// Sources returns the config files read by the last load, lowest
// precedence first.
func (l *KoanfLoader) Sources() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.sources...)
}

// findProjectConfig checks for project config files and returns the first found.
func (l *KoanfLoader) findProjectConfig() string {
	for _, path := range l.ProjectConfigPaths() {
		if fileExists(path) {
			return path
		}
	}

	return ""
}

// HasGlobalConfig checks if a global configuration file exists.
func (l *KoanfLoader) HasGlobalConfig() bool {
	return fileExists(l.GlobalConfigPath())
}

// HasProjectConfig checks if a project configuration file exists.
func (l *KoanfLoader) HasProjectConfig() bool {
	return l.findProjectConfig() != ""
}

// flagsToConfig converts CLI flags to a configuration map.
func (*KoanfLoader) flagsToConfig(flags map[string]any) map[string]any {
	result := make(map[string]any)

	set := func(section, key string, value any) {
		ensureMapKey(result, section)[key] = value
	}

	for key, value := range flags {
		switch key {
		case "timeout":
			if s, ok := value.(string); ok && s != "" {
				set("hooks", "default_timeout", s)
			}

		case "max-concurrent":
			if n, ok := value.(int); ok && n > 0 {
				set("hooks", "max_concurrent", n)
			}

		case "log-level":
			if s, ok := value.(string); ok && s != "" {
				set("log", "level", s)
			}

		case "log-file":
			if s, ok := value.(string); ok && s != "" {
				set("log", "file", s)
			}

		case "audit-backend":
			if s, ok := value.(string); ok && s != "" {
				set("audit", "backend", s)
			}

		case "audit-path":
			if s, ok := value.(string); ok && s != "" {
				set("audit", "path", s)
			}

		case "no-audit":
			if b, ok := value.(bool); ok && b {
				set("audit", "enabled", false)
			}
		}
	}

	return result
}

// ensureMapKey ensures a key exists as a map and returns it.
func ensureMapKey(cfg map[string]any, key string) map[string]any {
	if _, ok := cfg[key]; !ok {
		cfg[key] = make(map[string]any)
	}

	result, _ := cfg[key].(map[string]any)

	return result
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return !info.IsDir()
}

// mustGetwd returns the current working directory or panics.
func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		panic("failed to get working directory: " + err.Error())
	}

	return wd
}
