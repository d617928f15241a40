package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smykla-skalski/hookgate/internal/registry"
	"github.com/smykla-skalski/hookgate/pkg/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

// newSeparatedLoader creates a loader with separate home and work dirs.
func newSeparatedLoader() (loader *KoanfLoader, homeDir, workDir string) {
	homeDir = GinkgoT().TempDir()
	workDir = GinkgoT().TempDir()

	loader, err := NewKoanfLoaderWithDirs(homeDir, workDir)
	Expect(err).NotTo(HaveOccurred())

	return loader, homeDir, workDir
}

func writeProjectConfig(workDir, content string) string {
	dir := filepath.Join(workDir, ProjectConfigDir)
	Expect(os.MkdirAll(dir, 0o755)).To(Succeed())

	path := filepath.Join(dir, ProjectConfigFile)
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

	return path
}

func writeGlobalConfig(homeDir, content string) string {
	dir := filepath.Join(homeDir, ".config", "hookgate")
	Expect(os.MkdirAll(dir, 0o755)).To(Succeed())

	path := filepath.Join(dir, "config.toml")
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

	return path
}

func names(defs []*config.HookConfig) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}

	return out
}

const globalHooks = `
[[hooks.definitions]]
name = "audit"
command = "/usr/bin/true"
events = ["SessionStart", "SessionEnd"]

[[hooks.definitions]]
name = "guard"
command = "/opt/hooks/guard"
events = ["BeforeToolCall"]
timeout = "1s"
`

var _ = Describe("KoanfLoader", func() {
	Context("without config files", func() {
		It("returns defaults and no definitions", func() {
			loader, _, _ := newSeparatedLoader()

			cfg, err := loader.Load(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Hooks.GetDefaultTimeout()).To(Equal(5 * time.Second))
			Expect(cfg.Hooks.GetAcquireTimeout()).To(Equal(2 * time.Second))
			Expect(cfg.Hooks.GetOutputLimit()).To(Equal(64 * 1024))
			Expect(cfg.Hooks.Definitions).To(BeEmpty())
			Expect(cfg.Audit.GetBackend()).To(Equal("jsonl"))
			Expect(cfg.Log.GetLevel()).To(Equal("info"))
			Expect(loader.Sources()).To(BeEmpty())
		})
	})

	Context("with a global config", func() {
		It("decodes definitions with durations and env maps", func() {
			loader, homeDir, _ := newSeparatedLoader()
			writeGlobalConfig(homeDir, globalHooks+`
[hooks.definitions.env]
LEVEL = "strict"
`)

			cfg, err := loader.Load(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(names(cfg.Hooks.Definitions)).To(Equal([]string{"audit", "guard"}))

			guard := cfg.Hooks.Definitions[1]
			Expect(guard.Timeout.ToDuration()).To(Equal(time.Second))
			Expect(guard.Env).To(HaveKeyWithValue("LEVEL", "strict"))
			Expect(guard.IsEnabled()).To(BeTrue())
		})
	})

	Context("with global and project configs", func() {
		It("merges definitions by name and keeps declaration order", func() {
			loader, homeDir, workDir := newSeparatedLoader()
			globalPath := writeGlobalConfig(homeDir, globalHooks)
			projectPath := writeProjectConfig(workDir, `
[hooks]
default_timeout = "3s"

[[hooks.definitions]]
name = "guard"
command = "/opt/hooks/guard-v2"
events = ["BeforeToolCall"]
enabled = false

[[hooks.definitions]]
name = "redact"
command = "/opt/hooks/redact"
events = ["ToolResultPersist"]
`)

			cfg, err := loader.Load(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(names(cfg.Hooks.Definitions)).To(Equal([]string{"audit", "guard", "redact"}))
			Expect(cfg.Hooks.Definitions[1].Command).To(Equal("/opt/hooks/guard-v2"))
			Expect(cfg.Hooks.Definitions[1].IsEnabled()).To(BeFalse())
			Expect(cfg.Hooks.GetDefaultTimeout()).To(Equal(3 * time.Second))
			Expect(loader.Sources()).To(Equal([]string{globalPath, projectPath}))
		})

		It("finds the alternative project file name", func() {
			loader, _, workDir := newSeparatedLoader()
			Expect(os.WriteFile(filepath.Join(workDir, ProjectConfigFileAlt), []byte(`
[log]
level = "debug"
`), 0o644)).To(Succeed())

			cfg, err := loader.Load(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Log.Level).To(Equal("debug"))
			Expect(loader.HasProjectConfig()).To(BeTrue())
		})
	})

	Context("precedence", func() {
		It("lets env override files and flags override env", func() {
			loader, _, workDir := newSeparatedLoader()
			writeProjectConfig(workDir, `
[hooks]
default_timeout = "3s"
max_concurrent = 2

[audit]
backend = "jsonl"
`)
			GinkgoT().Setenv("HOOKGATE_HOOKS__DEFAULT_TIMEOUT", "7s")
			GinkgoT().Setenv("HOOKGATE_HOOKS__MAX_CONCURRENT", "9")
			GinkgoT().Setenv("HOOKGATE_AUDIT__BACKEND", "sqlite")

			cfg, err := loader.Load(map[string]any{"timeout": "11s"})
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Hooks.GetDefaultTimeout()).To(Equal(11 * time.Second))
			Expect(cfg.Hooks.GetMaxConcurrent()).To(Equal(9))
			Expect(cfg.Audit.GetBackend()).To(Equal("sqlite"))
		})

		It("maps flags onto their sections", func() {
			loader, _, _ := newSeparatedLoader()

			cfg, err := loader.Load(map[string]any{
				"log-level":      "warn",
				"no-audit":       true,
				"audit-path":     "/tmp/audit.db",
				"max-concurrent": 3,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Log.Level).To(Equal("warn"))
			Expect(cfg.Audit.IsEnabled()).To(BeFalse())
			Expect(cfg.Audit.Path).To(Equal("/tmp/audit.db"))
			Expect(cfg.Hooks.GetMaxConcurrent()).To(Equal(3))
		})
	})

	Context("file checks", func() {
		It("rejects world-writable config files", func() {
			loader, _, workDir := newSeparatedLoader()
			path := writeProjectConfig(workDir, "version = 1\n")
			Expect(os.Chmod(path, 0o666)).To(Succeed())

			_, err := loader.Load(nil)
			Expect(errors.Is(err, ErrInvalidPermissions)).To(BeTrue())
		})

		It("reports malformed TOML", func() {
			loader, _, workDir := newSeparatedLoader()
			writeProjectConfig(workDir, "[hooks\n")

			_, err := loader.Load(nil)
			Expect(errors.Is(err, ErrInvalidTOML)).To(BeTrue())
		})
	})

	Context("validation", func() {
		It("collects every problem", func() {
			loader, _, workDir := newSeparatedLoader()
			writeProjectConfig(workDir, `
[audit]
backend = "postgres"

[log]
level = "loud"

[[hooks.definitions]]
name = "a"
command = "/bin/true"
events = ["SessionEnd"]

[[hooks.definitions]]
name = "b"
command = "/bin/true"
events = []
`)

			_, err := loader.Load(nil)
			Expect(errors.Is(err, ErrInvalidConfig)).To(BeTrue())
			Expect(errors.Is(err, ErrInvalidOption)).To(BeTrue())
			Expect(errors.Is(err, registry.ErrNoEvents)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("validation failed with 3 error(s)"))
		})

		It("still returns the config without validation", func() {
			loader, _, workDir := newSeparatedLoader()
			writeProjectConfig(workDir, `
[log]
level = "loud"
`)

			cfg, err := loader.LoadWithoutValidation(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Log.Level).To(Equal("loud"))
		})

		It("rejects newer config versions", func() {
			err := NewValidator().Validate(&config.Config{Version: 99})
			Expect(errors.Is(err, ErrUnsupportedVersion)).To(BeTrue())
		})
	})

	Describe("Watch", func() {
		It("reloads when a config file changes", func() {
			loader, _, workDir := newSeparatedLoader()
			path := writeProjectConfig(workDir, `
[[hooks.definitions]]
name = "one"
command = "/bin/true"
events = ["SessionEnd"]
`)
			_, err := loader.Load(nil)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			DeferCleanup(cancel)

			reloaded := make(chan *config.Config, 4)
			done := make(chan error, 1)

			go func() {
				done <- loader.Watch(ctx, 20*time.Millisecond, func(cfg *config.Config, err error) {
					if err == nil {
						reloaded <- cfg
					}
				})
			}()

			// Give fsnotify a moment to register the watch.
			time.Sleep(100 * time.Millisecond)
			Expect(os.WriteFile(path, []byte(`
[[hooks.definitions]]
name = "one"
command = "/bin/true"
events = ["SessionEnd"]

[[hooks.definitions]]
name = "two"
command = "/bin/true"
events = ["SessionEnd"]
`), 0o644)).To(Succeed())

			var cfg *config.Config
			Eventually(reloaded, 5*time.Second).Should(Receive(&cfg))
			Expect(names(cfg.Hooks.Definitions)).To(Equal([]string{"one", "two"}))

			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})

var _ = Describe("mergeDefinitions", func() {
	It("replaces in place and appends new names", func() {
		a1 := &config.HookConfig{Name: "a", Command: "1"}
		b := &config.HookConfig{Name: "b"}
		a2 := &config.HookConfig{Name: "a", Command: "2"}
		c := &config.HookConfig{Name: "c"}

		merged := mergeDefinitions([]*config.HookConfig{a1, b}, []*config.HookConfig{c, a2})
		Expect(merged).To(Equal([]*config.HookConfig{a2, b, c}))
	})

	It("keeps unnamed definitions for validation", func() {
		merged := mergeDefinitions([]*config.HookConfig{{}, {}})
		Expect(merged).To(HaveLen(2))
	})
})

var _ = Describe("Writer", func() {
	It("writes a config the loader reads back", func() {
		homeDir := GinkgoT().TempDir()
		workDir := GinkgoT().TempDir()
		writer := NewWriterWithDirs(homeDir, workDir)

		cfg := DefaultConfig()
		cfg.Hooks.Definitions = []*config.HookConfig{{
			Name:    "guard",
			Command: "/opt/hooks/guard",
			Events:  []string{"BeforeToolCall"},
			Tools:   []string{"exec"},
			Timeout: config.Duration(3 * time.Second),
		}}

		path, err := writer.WriteProject(cfg, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(workDir, ProjectConfigDir, ProjectConfigFile)))

		info, err := os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(ConfigFileMode)))

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(HavePrefix("#:schema "))

		loader, err := NewKoanfLoaderWithDirs(homeDir, workDir)
		Expect(err).NotTo(HaveOccurred())

		loaded, err := loader.Load(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Hooks.Definitions).To(HaveLen(1))
		Expect(loaded.Hooks.Definitions[0].Timeout.ToDuration()).To(Equal(3 * time.Second))
		Expect(loaded.Hooks.Definitions[0].Tools).To(Equal([]string{"exec"}))
	})

	It("refuses to overwrite without force", func() {
		writer := NewWriterWithDirs(GinkgoT().TempDir(), GinkgoT().TempDir())

		_, err := writer.WriteGlobal(DefaultConfig(), false)
		Expect(err).NotTo(HaveOccurred())

		_, err = writer.WriteGlobal(DefaultConfig(), false)
		Expect(errors.Is(err, ErrConfigExists)).To(BeTrue())

		_, err = writer.WriteGlobal(DefaultConfig(), true)
		Expect(err).NotTo(HaveOccurred())
	})
})
