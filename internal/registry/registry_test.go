package registry_test

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smykla-skalski/hookgate/internal/registry"
	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/hook"
)

func TestRegistry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Registry Suite")
}

func def(name string, events ...string) *config.HookConfig {
	return &config.HookConfig{Name: name, Command: "/opt/hooks/" + name, Events: events}
}

func names(defs []*registry.Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name())
	}

	return out
}

var _ = Describe("Registry", func() {
	It("returns enabled hooks per event in declaration order", func() {
		disabled := def("c", "BeforeToolCall")
		disabled.Enabled = new(bool)

		r, err := registry.New(1, registry.Defaults{}, []*config.HookConfig{
			def("b", "BeforeToolCall", "SessionEnd"),
			def("a", "BeforeToolCall"),
			disabled,
			def("d", "ToolResultPersist"),
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(names(r.ForEvent(hook.EventBeforeToolCall))).To(Equal([]string{"b", "a"}))
		Expect(names(r.ForEvent(hook.EventSessionEnd))).To(Equal([]string{"b"}))
		Expect(r.ForEvent(hook.EventSessionStart)).To(BeEmpty())
		Expect(r.ForEvent("Custom")).To(BeEmpty())
	})

	It("keeps disabled hooks for introspection", func() {
		disabled := def("off", "SessionEnd")
		disabled.Enabled = new(bool)

		r, err := registry.New(1, registry.Defaults{}, []*config.HookConfig{disabled})
		Expect(err).NotTo(HaveOccurred())

		Expect(r.Len()).To(Equal(1))
		Expect(names(r.All())).To(Equal([]string{"off"}))

		got, ok := r.Get("off")
		Expect(ok).To(BeTrue())
		Expect(got.Enabled()).To(BeFalse())
		Expect(r.ForEvent(hook.EventSessionEnd)).To(BeEmpty())
	})

	It("does not expose internal slices", func() {
		r, err := registry.New(1, registry.Defaults{}, []*config.HookConfig{
			def("a", "SessionEnd"), def("b", "SessionEnd"),
		})
		Expect(err).NotTo(HaveOccurred())

		list := r.ForEvent(hook.EventSessionEnd)
		list[0] = nil
		Expect(names(r.ForEvent(hook.EventSessionEnd))).To(Equal([]string{"a", "b"}))
	})

	It("accepts events missing from the catalog", func() {
		r, err := registry.New(1, registry.Defaults{}, []*config.HookConfig{def("x", "Custom")})
		Expect(err).NotTo(HaveOccurred())
		Expect(names(r.ForEvent("Custom"))).To(Equal([]string{"x"}))
	})

	Describe("validation", func() {
		DescribeTable("rejects invalid definitions",
			func(cfg *config.HookConfig, want error) {
				_, err := registry.New(1, registry.Defaults{}, []*config.HookConfig{cfg})
				Expect(errors.Is(err, want)).To(BeTrue(), "got %v", err)
			},
			Entry("missing name", &config.HookConfig{Command: "/bin/true", Events: []string{"SessionEnd"}}, registry.ErrMissingName),
			Entry("missing command", &config.HookConfig{Name: "x", Events: []string{"SessionEnd"}}, registry.ErrMissingCommand),
			Entry("no events", &config.HookConfig{Name: "x", Command: "/bin/true"}, registry.ErrNoEvents),
			Entry("blank event", &config.HookConfig{Name: "x", Command: "/bin/true", Events: []string{" "}}, registry.ErrNoEvents),
			Entry("metacharacters", &config.HookConfig{Name: "x", Command: "/bin/true; rm -rf /", Events: []string{"SessionEnd"}}, registry.ErrDangerousChars),
			Entry("bad tool glob", &config.HookConfig{Name: "x", Command: "/bin/true", Events: []string{"BeforeToolCall"}, Tools: []string{"[exec"}}, registry.ErrInvalidToolPattern),
			Entry("unterminated run", &config.HookConfig{Name: "x", Run: `python3 "unterminated`, Events: []string{"SessionEnd"}}, registry.ErrInvalidRun),
			Entry("negative timeout", &config.HookConfig{Name: "x", Command: "/bin/true", Events: []string{"SessionEnd"}, Timeout: config.Duration(-time.Second)}, registry.ErrNegativeTimeout),
		)

		It("rejects duplicate names", func() {
			_, err := registry.New(1, registry.Defaults{}, []*config.HookConfig{
				def("a", "SessionEnd"), def("a", "SessionStart"),
			})
			Expect(errors.Is(err, registry.ErrDuplicateName)).To(BeTrue())
		})

		It("reports every invalid definition", func() {
			err := registry.Validate([]*config.HookConfig{
				{Name: "x", Events: []string{"SessionEnd"}},
				{Name: "y", Command: "/bin/true"},
			})
			Expect(errors.Is(err, registry.ErrMissingCommand)).To(BeTrue())
			Expect(errors.Is(err, registry.ErrNoEvents)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("hooks.definitions[1]"))
		})

		It("does not require the command to exist", func() {
			Expect(registry.Validate([]*config.HookConfig{def("later", "SessionEnd")})).To(Succeed())
		})
	})
})

var _ = Describe("Definition", func() {
	It("fills the default timeout and copies fields", func() {
		cfg := &config.HookConfig{
			Name:    "guard",
			Command: "/opt/guard",
			Args:    []string{"--strict"},
			Events:  []string{"BeforeToolCall", "BeforeToolCall"},
			Env:     map[string]string{"LEVEL": "high"},
		}

		d, err := registry.NewDefinition(cfg, registry.Defaults{Timeout: 3 * time.Second})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Timeout()).To(Equal(3 * time.Second))
		Expect(d.Events()).To(Equal([]hook.Event{hook.EventBeforeToolCall}))

		cfg.Args[0] = "--lax"
		cfg.Env["LEVEL"] = "low"
		Expect(d.Args()).To(Equal([]string{"--strict"}))
		Expect(d.Env()).To(HaveKeyWithValue("LEVEL", "high"))

		d.Env()["LEVEL"] = "mutated"
		Expect(d.Env()).To(HaveKeyWithValue("LEVEL", "high"))
	})

	It("uses five seconds when nothing sets a timeout", func() {
		d, err := registry.NewDefinition(def("x", "SessionEnd"), registry.Defaults{})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Timeout()).To(Equal(5 * time.Second))
	})

	It("splits run lines and expands the hook env", func() {
		d, err := registry.NewDefinition(&config.HookConfig{
			Name:   "py",
			Run:    `python3 "$HOOK_DIR/audit.py" --json`,
			Args:   []string{"--verbose"},
			Events: []string{"SessionEnd"},
			Env:    map[string]string{"HOOK_DIR": "/srv/hooks dir"},
		}, registry.Defaults{})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Command()).To(Equal("python3"))
		Expect(d.Args()).To(Equal([]string{"/srv/hooks dir/audit.py", "--json", "--verbose"}))
	})

	It("prefers command over run", func() {
		d, err := registry.NewDefinition(&config.HookConfig{
			Name: "x", Command: "/bin/true", Run: "ignored here", Events: []string{"SessionEnd"},
		}, registry.Defaults{})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Command()).To(Equal("/bin/true"))
		Expect(d.Args()).To(BeEmpty())
	})

	DescribeTable("MatchesTool",
		func(tools []string, tool string, want bool) {
			cfg := def("x", "BeforeToolCall")
			cfg.Tools = tools

			d, err := registry.NewDefinition(cfg, registry.Defaults{})
			Expect(err).NotTo(HaveOccurred())
			Expect(d.MatchesTool(tool)).To(Equal(want))
		},
		Entry("no patterns match everything", nil, "anything", true),
		Entry("exact", []string{"exec"}, "exec", true),
		Entry("glob", []string{"shell*"}, "shell_run", true),
		Entry("alternatives", []string{"{read,write}_file"}, "write_file", true),
		Entry("no match", []string{"exec"}, "browser", false),
	)
})

var _ = Describe("Reload", func() {
	It("is pure and increments the version", func() {
		r1, err := registry.New(1, registry.Defaults{}, []*config.HookConfig{def("a", "SessionEnd")})
		Expect(err).NotTo(HaveOccurred())

		r2, err := r1.Reload([]*config.HookConfig{def("b", "SessionEnd")})
		Expect(err).NotTo(HaveOccurred())

		Expect(r2.Version()).To(Equal(uint64(2)))
		Expect(names(r1.ForEvent(hook.EventSessionEnd))).To(Equal([]string{"a"}))
		Expect(names(r2.ForEvent(hook.EventSessionEnd))).To(Equal([]string{"b"}))
	})
})

var _ = Describe("Store", func() {
	It("starts empty", func() {
		s := registry.NewStore(nil)
		Expect(s.Load().Len()).To(Equal(0))
		Expect(s.Load().Version()).To(Equal(uint64(0)))
	})

	It("keeps the current snapshot when reload fails", func() {
		s := registry.NewStore(nil)

		first, err := s.Reload(&config.HooksConfig{Definitions: []*config.HookConfig{def("a", "SessionEnd")}})
		Expect(err).NotTo(HaveOccurred())

		_, err = s.Reload(&config.HooksConfig{Definitions: []*config.HookConfig{{Name: "broken"}}})
		Expect(err).To(HaveOccurred())
		Expect(s.Load()).To(BeIdenticalTo(first))
	})

	It("applies new defaults on reload", func() {
		s := registry.NewStore(nil)

		r, err := s.Reload(&config.HooksConfig{
			DefaultTimeout: config.Duration(time.Second),
			Definitions:    []*config.HookConfig{def("a", "SessionEnd")},
		})
		Expect(err).NotTo(HaveOccurred())

		a, _ := r.Get("a")
		Expect(a.Timeout()).To(Equal(time.Second))
	})

	It("swaps and returns the previous snapshot", func() {
		s := registry.NewStore(nil)
		old := s.Load()

		next, err := old.Reload(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Swap(next)).To(BeIdenticalTo(old))
		Expect(s.Load()).To(BeIdenticalTo(next))
	})

	It("gives concurrent readers consistent snapshots during reloads", func() {
		s := registry.NewStore(nil)

		var wg sync.WaitGroup

		wg.Add(2)

		go func() {
			defer GinkgoRecover()
			defer wg.Done()

			for i := range 200 {
				cfgs := []*config.HookConfig{def("a", "SessionEnd")}
				if i%2 == 0 {
					cfgs = append(cfgs, def("b", "SessionEnd"))
				}

				_, err := s.Reload(&config.HooksConfig{Definitions: cfgs})
				Expect(err).NotTo(HaveOccurred())
			}
		}()

		go func() {
			defer GinkgoRecover()
			defer wg.Done()

			for range 200 {
				snap := s.Load()
				Expect(snap.ForEvent(hook.EventSessionEnd)).To(HaveLen(snap.Len()))
			}
		}()

		wg.Wait()
		Expect(s.Load().Version()).To(Equal(uint64(200)))
	})
})
