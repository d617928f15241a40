// Package hookio is the Go API for hook program authors.
//
// A hook reads one context message from stdin and answers through its exit
// code and output streams. Example hook:
//
//	package main
//
//	import (
//		"strings"
//
//		"github.com/smykla-skalski/hookgate/pkg/hook"
//		"github.com/smykla-skalski/hookgate/pkg/hookio"
//	)
//
//	func main() {
//		hookio.Main(func(ctx *hook.Context) hook.Verdict {
//			if strings.Contains(ctx.Payload.ToolName(), "shell") {
//				return hook.Block("shell tools are disabled")
//			}
//
//			return hook.Continue()
//		})
//	}
package hookio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/smykla-skalski/hookgate/pkg/hook"
)

// Exit codes used by Respond.
const (
	ExitContinue = 0
	ExitBlock    = 1

	// ExitError is used when the hook could not read its input. The engine
	// treats it like any other non-zero exit.
	ExitError = 2
)

// ReadContext decodes the context message from r.
func ReadContext(r io.Reader) (*hook.Context, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading hook context")
	}

	return hook.DecodeContext(data)
}

// WriteModify writes a modify message replacing the event's modifiable
// field with data.
func WriteModify(w io.Writer, data any) error {
	if data == nil {
		return errors.New("modify data must not be null")
	}

	out, err := json.Marshal(hook.Output{Action: hook.ActionModify, Data: data})
	if err != nil {
		return errors.Wrap(err, "marshaling modify output")
	}

	_, err = w.Write(append(out, '\n'))

	return errors.Wrap(err, "writing modify output")
}

// Respond renders v on stdout and stderr and returns the exit code the hook
// should terminate with.
func Respond(stdout, stderr io.Writer, v hook.Verdict) int {
	switch v.Kind {
	case hook.VerdictBlock:
		_, _ = fmt.Fprintln(stderr, v.Reason)

		return ExitBlock
	case hook.VerdictModify:
		if err := WriteModify(stdout, v.Data); err != nil {
			_, _ = fmt.Fprintln(stderr, err)

			return ExitError
		}

		return ExitContinue
	default:
		return ExitContinue
	}
}

// Run reads the context from stdin, calls fn and writes its verdict. It
// returns the exit code.
func Run(stdin io.Reader, stdout, stderr io.Writer, fn func(*hook.Context) hook.Verdict) int {
	ctx, err := ReadContext(stdin)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)

		return ExitError
	}

	return Respond(stdout, stderr, fn(ctx))
}

// Main is Run over the process streams followed by os.Exit.
func Main(fn func(*hook.Context) hook.Verdict) {
	os.Exit(Run(os.Stdin, os.Stdout, os.Stderr, fn))
}
