package verdict_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smykla-skalski/hookgate/internal/verdict"
	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

func TestVerdict(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Verdict Suite")
}

func exited(code int, stdout, stderr string) *hook.InvocationRecord {
	return &hook.InvocationRecord{
		ID:       "rec-1",
		HookName: "guard",
		ExitCode: &code,
		Stdout:   stdout,
		Stderr:   stderr,
		Outcome:  hook.OutcomeOK,
	}
}

var _ = Describe("Parser", func() {
	var (
		parser *verdict.Parser
		logs   *bytes.Buffer
	)

	BeforeEach(func() {
		logs = &bytes.Buffer{}

		var err error

		parser, err = verdict.New(hook.DefaultCatalog(), logger.NewWriterLogger(logs, logger.LevelDebug))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("fail-open outcomes", func() {
		DescribeTable("continue with a diagnostic",
			func(outcome hook.Outcome, want error) {
				v := parser.Parse(hook.EventBeforeToolCall, &hook.InvocationRecord{
					HookName: "guard",
					Outcome:  outcome,
					Error:    "boom",
				})

				Expect(v.IsContinue()).To(BeTrue())
				Expect(errors.Is(v.Diagnostic, want)).To(BeTrue())
			},
			Entry("timeout", hook.OutcomeTimedOut, hook.ErrTimeout),
			Entry("spawn failure", hook.OutcomeSpawnFailed, hook.ErrSpawnFailed),
			Entry("cancellation", hook.OutcomeCancelled, hook.ErrCancelled),
		)

		It("logs spawn failures at warn with context", func() {
			parser.Parse(hook.EventBeforeToolCall, &hook.InvocationRecord{
				ID:       "rec-9",
				HookName: "ghost",
				Outcome:  hook.OutcomeSpawnFailed,
				Error:    "no such file",
			})

			Expect(logs.String()).To(ContainSubstring("WARN"))
			Expect(logs.String()).To(ContainSubstring("hook=ghost"))
			Expect(logs.String()).To(ContainSubstring("outcome=spawn_failed"))
			Expect(logs.String()).To(ContainSubstring("id=rec-9"))
		})
	})

	Describe("non-zero exit", func() {
		It("blocks with the trimmed stderr", func() {
			v := parser.Parse(hook.EventBeforeToolCall, exited(1, "", "  Blocked dangerous command pattern: rm -rf /\n"))

			Expect(v.IsBlock()).To(BeTrue())
			Expect(v.Reason).To(Equal("Blocked dangerous command pattern: rm -rf /"))
			Expect(v.Diagnostic).To(BeNil())
		})

		It("generates a reason when stderr is blank", func() {
			v := parser.Parse(hook.EventSessionStart, exited(3, `{"action":"modify","data":{}}`, " \n"))

			Expect(v.IsBlock()).To(BeTrue())
			Expect(v.Reason).To(Equal("guard blocked (exit 3)"))
		})

		It("is downgraded on events that cannot be blocked", func() {
			v := parser.Parse(hook.EventSessionEnd, exited(1, "", "nope"))

			Expect(v.IsContinue()).To(BeTrue())
			Expect(errors.Is(v.Diagnostic, hook.ErrIllegalVerdict)).To(BeTrue())
		})
	})

	Describe("zero exit", func() {
		It("continues on blank stdout", func() {
			v := parser.Parse(hook.EventToolResultPersist, exited(0, " \n\t", "debug noise"))

			Expect(v.IsContinue()).To(BeTrue())
			Expect(v.Diagnostic).To(BeNil())
		})

		It("modifies on a valid modify message", func() {
			v := parser.Parse(hook.EventToolResultPersist, exited(0, `{"action":"modify","data":{"text":"[REDACTED]","n":2}}`, ""))

			Expect(v.IsModify()).To(BeTrue())
			Expect(v.Data).To(Equal(map[string]any{"text": "[REDACTED]", "n": json.Number("2")}))
		})

		It("ignores keys besides action and data", func() {
			v := parser.Parse(hook.EventToolResultPersist, exited(0, `{"action":"modify","data":{"out":"[REDACTED]"},"reason":"token redacted"}`, ""))

			Expect(v.IsModify()).To(BeTrue())
			Expect(v.Diagnostic).To(BeNil())
			Expect(v.Data).To(Equal(map[string]any{"out": "[REDACTED]"}))
		})

		It("accepts non-object data", func() {
			v := parser.Parse(hook.EventMessageSending, exited(0, `{"action":"modify","data":"hello"}`, ""))

			Expect(v.IsModify()).To(BeTrue())
			Expect(v.Data).To(Equal("hello"))
		})

		DescribeTable("treats anything else as malformed",
			func(stdout string) {
				v := parser.Parse(hook.EventToolResultPersist, exited(0, stdout, ""))

				Expect(v.IsContinue()).To(BeTrue())
				Expect(errors.Is(v.Diagnostic, hook.ErrMalformedModifyOutput)).To(BeTrue())
			},
			Entry("plain text", "all good"),
			Entry("array", `[1,2]`),
			Entry("missing action", `{"data":{}}`),
			Entry("non-string action", `{"action":1,"data":{}}`),
			Entry("unknown action", `{"action":"block","data":{}}`),
			Entry("missing data", `{"action":"modify"}`),
			Entry("null data", `{"action":"modify","data":null}`),
			Entry("trailing garbage", `{"action":"modify","data":{}} {}`),
			Entry("truncated", `{"action":"modify","data":{"a":`),
		)

		It("downgrades modify on events without a modifiable field", func() {
			v := parser.Parse(hook.EventBeforeToolCall, exited(0, `{"action":"modify","data":{}}`, ""))

			Expect(v.IsContinue()).To(BeTrue())
			Expect(errors.Is(v.Diagnostic, hook.ErrIllegalVerdict)).To(BeTrue())
			Expect(logs.String()).To(ContainSubstring("downgraded"))
		})

		It("only allows continue for events missing from the catalog", func() {
			v := parser.Parse("Custom", exited(0, `{"action":"modify","data":{}}`, ""))
			Expect(v.IsContinue()).To(BeTrue())

			v = parser.Parse("Custom", exited(1, "", "no"))
			Expect(v.IsContinue()).To(BeTrue())
		})

		It("honours catalog extensions", func() {
			catalog := hook.DefaultCatalog().With(hook.EventSpec{Name: "Custom", Gating: true, ModifyWhole: true})

			p, err := verdict.New(catalog, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Parse("Custom", exited(0, `{"action":"modify","data":{"a":"b"}}`, "")).IsModify()).To(BeTrue())
			Expect(p.Parse("Custom", exited(2, "", "x")).IsBlock()).To(BeTrue())
		})
	})
})
