package hookio_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/hookio"
)

func TestHookio(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Hookio Suite")
}

func encoded(event hook.Event, payload hook.Payload) string {
	data, err := hook.NewContext(event, payload, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)).Encode()
	Expect(err).NotTo(HaveOccurred())

	return string(data)
}

var _ = Describe("Run", func() {
	var stdout, stderr *bytes.Buffer

	BeforeEach(func() {
		stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	})

	It("passes the decoded context to the hook", func() {
		input := encoded(hook.EventBeforeToolCall, hook.Payload{"session_key": "s1", "tool_name": "exec"})

		var got *hook.Context

		code := hookio.Run(strings.NewReader(input), stdout, stderr, func(ctx *hook.Context) hook.Verdict {
			got = ctx

			return hook.Continue()
		})

		Expect(code).To(Equal(hookio.ExitContinue))
		Expect(got.Event).To(Equal(hook.EventBeforeToolCall))
		Expect(got.Payload.ToolName()).To(Equal("exec"))
		Expect(got.Payload.SessionKey()).To(Equal("s1"))
		Expect(stdout.String()).To(BeEmpty())
	})

	It("blocks through stderr and exit 1", func() {
		code := hookio.Run(strings.NewReader(encoded(hook.EventSessionStart, nil)), stdout, stderr,
			func(*hook.Context) hook.Verdict { return hook.Block("not today") })

		Expect(code).To(Equal(hookio.ExitBlock))
		Expect(stderr.String()).To(Equal("not today\n"))
	})

	It("modifies through stdout", func() {
		code := hookio.Run(strings.NewReader(encoded(hook.EventToolResultPersist, nil)), stdout, stderr,
			func(*hook.Context) hook.Verdict { return hook.Modify(map[string]any{"text": "[REDACTED]"}) })

		Expect(code).To(Equal(hookio.ExitContinue))
		Expect(stdout.String()).To(MatchJSON(`{"action":"modify","data":{"text":"[REDACTED]"}}`))
	})

	It("refuses null modify data", func() {
		code := hookio.Respond(stdout, stderr, hook.Modify(nil))

		Expect(code).To(Equal(hookio.ExitError))
		Expect(stdout.String()).To(BeEmpty())
	})

	It("fails on unreadable input", func() {
		code := hookio.Run(strings.NewReader("not json"), stdout, stderr,
			func(*hook.Context) hook.Verdict { return hook.Continue() })

		Expect(code).To(Equal(hookio.ExitError))
		Expect(stderr.String()).NotTo(BeEmpty())
	})
})
