package doctor_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"go.uber.org/mock/gomock"

	"github.com/smykla-skalski/hookgate/internal/doctor"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

func TestDoctor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Doctor Suite")
}

func checker(ctrl *gomock.Controller, name string, category doctor.Category, results ...doctor.CheckResult) *doctor.MockHealthChecker {
	c := doctor.NewMockHealthChecker(ctrl)
	c.EXPECT().Name().Return(name).AnyTimes()
	c.EXPECT().Category().Return(category).AnyTimes()

	call := c.EXPECT().Check(gomock.Any()).Return(results[0])
	for _, r := range results[1:] {
		call = c.EXPECT().Check(gomock.Any()).Return(r).After(call)
	}

	return c
}

var _ = Describe("Registry", func() {
	var ctrl *gomock.Controller

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
	})

	It("returns results in registration order with categories filled", func() {
		r := doctor.NewRegistry()
		r.RegisterChecker(
			checker(ctrl, "b", doctor.CategoryStorage, doctor.Pass("b", "ok")),
			checker(ctrl, "a", doctor.CategoryConfig, doctor.FailWarning("a", "meh")),
		)

		results := r.Run(context.Background())
		Expect(results).To(HaveLen(2))
		Expect(results[0].Name).To(Equal("b"))
		Expect(results[0].Category).To(Equal(doctor.CategoryStorage))
		Expect(results[1].Name).To(Equal("a"))
		Expect(results[1].IsWarning()).To(BeTrue())
		Expect(r.CheckerCount()).To(Equal(2))
	})

	It("filters by category", func() {
		skipped := doctor.NewMockHealthChecker(ctrl)
		skipped.EXPECT().Category().Return(doctor.CategoryStorage).AnyTimes()

		r := doctor.NewRegistry()
		r.RegisterChecker(
			skipped,
			checker(ctrl, "hooks", doctor.CategoryHooks, doctor.Pass("hooks", "")),
		)

		results := r.Run(context.Background(), doctor.CategoryHooks)
		Expect(results).To(HaveLen(1))
		Expect(results[0].Name).To(Equal("hooks"))
	})

	It("fills a missing result name from the checker", func() {
		r := doctor.NewRegistry()
		r.RegisterChecker(checker(ctrl, "named", doctor.CategoryConfig, doctor.CheckResult{Status: doctor.StatusPass}))

		Expect(r.Run(context.Background())[0].Name).To(Equal("named"))
	})
})

var _ = Describe("Runner", func() {
	var (
		ctrl *gomock.Controller
		reg  *doctor.Registry
		out  *gbytes.Buffer
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		reg = doctor.NewRegistry()
		out = gbytes.NewBuffer()
	})

	run := func(opts doctor.RunOptions) error {
		return doctor.NewRunner(reg, doctor.NewSimpleReporter(out), logger.NewNoOpLogger()).
			Run(context.Background(), opts)
	}

	It("succeeds when only warnings remain", func() {
		reg.RegisterChecker(
			checker(ctrl, "cfg", doctor.CategoryConfig, doctor.Pass("cfg", "2 hook(s) defined")),
			checker(ctrl, "cmds", doctor.CategoryHooks, doctor.FailWarning("cmds", "1 missing").WithDetails("x: not found")),
		)

		Expect(run(doctor.RunOptions{})).To(Succeed())
		Expect(out).To(gbytes.Say(`Configuration:\n  ✓ cfg - 2 hook\(s\) defined`))
		Expect(out).To(gbytes.Say(`Hooks:\n  ! cmds - 1 missing\n     x: not found`))
		Expect(out).To(gbytes.Say(`Summary: 0 error\(s\), 1 warning\(s\), 1 passed`))
	})

	It("fails on errors and suggests fixes without applying them", func() {
		reg.RegisterChecker(checker(ctrl, "dir", doctor.CategoryStorage, doctor.FailError("dir", "missing").WithFixID("mkdir")))

		fixer := doctor.NewMockFixer(ctrl)
		fixer.EXPECT().ID().Return("mkdir").AnyTimes()
		reg.RegisterFixer(fixer)

		err := run(doctor.RunOptions{})
		Expect(errors.Is(err, doctor.ErrChecksFailed)).To(BeTrue())
		Expect(out).To(gbytes.Say(`✗ dir - missing\n     → Run: hookgate doctor --fix`))
	})

	It("applies fixes and re-runs the fixed checks", func() {
		reg.RegisterChecker(
			checker(ctrl, "dir", doctor.CategoryStorage,
				doctor.FailError("dir", "missing").WithFixID("mkdir"),
				doctor.Pass("dir", "created"),
			),
			checker(ctrl, "cfg", doctor.CategoryConfig, doctor.Pass("cfg", "")),
		)

		fixer := doctor.NewMockFixer(ctrl)
		fixer.EXPECT().ID().Return("mkdir").AnyTimes()
		fixer.EXPECT().Fix(gomock.Any()).Return(nil)
		reg.RegisterFixer(fixer)

		Expect(run(doctor.RunOptions{Fix: true})).To(Succeed())
		Expect(out).To(gbytes.Say(`Summary: 1 error\(s\), 0 warning\(s\), 1 passed`))
		Expect(out).To(gbytes.Say(`✓ dir - created`))
		Expect(out).To(gbytes.Say(`Summary: 0 error\(s\), 0 warning\(s\), 1 passed`))
	})

	It("reports a failing fixer", func() {
		reg.RegisterChecker(checker(ctrl, "dir", doctor.CategoryStorage, doctor.FailError("dir", "missing").WithFixID("mkdir")))

		fixer := doctor.NewMockFixer(ctrl)
		fixer.EXPECT().ID().Return("mkdir").AnyTimes()
		fixer.EXPECT().Fix(gomock.Any()).Return(errors.New("read-only file system"))
		reg.RegisterFixer(fixer)

		err := run(doctor.RunOptions{Fix: true})
		Expect(err).To(MatchError(ContainSubstring(`failed to fix "dir": read-only file system`)))
	})

	It("passes every result to the reporter", func() {
		reporter := doctor.NewMockReporter(ctrl)
		reporter.EXPECT().Report(gomock.Len(1), true)

		reg.RegisterChecker(checker(ctrl, "cfg", doctor.CategoryConfig, doctor.Pass("cfg", "")))

		Expect(doctor.NewRunner(reg, reporter, logger.NewNoOpLogger()).
			Run(context.Background(), doctor.RunOptions{Verbose: true})).To(Succeed())
	})
})
