package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/smykla-skalski/hookgate/pkg/hook"
)

var (
	dispatchEvent     string
	dispatchSession   string
	dispatchTool      string
	dispatchArguments string
	dispatchResult    string
	dispatchContent   string
	dispatchPayload   string
	dispatchDeadline  time.Duration
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch one event and print the decision",
	Long: `Dispatch one event to the configured hooks and print the decision as JSON.

The payload is built from --payload (a JSON object, "-" reads stdin) and the
field flags, which take precedence. Exits 0 on allow and 2 on deny.

Examples:
  hookgate dispatch --event BeforeToolCall --tool exec --arguments '{"command":"ls"}'
  hookgate dispatch --event ToolResultPersist --tool exec --result '"output"'
  echo '{"session_key":"s1"}' | hookgate dispatch --event SessionStart --payload -`,
	RunE: runDispatch,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)

	flags := dispatchCmd.Flags()
	flags.StringVarP(&dispatchEvent, "event", "e", "", "Event name (e.g. BeforeToolCall)")
	flags.StringVar(&dispatchSession, "session", "", "Session key")
	flags.StringVar(&dispatchTool, "tool", "", "Tool name")
	flags.StringVar(&dispatchArguments, "arguments", "", "Tool arguments as a JSON object")
	flags.StringVar(&dispatchResult, "result", "", "Tool result as JSON")
	flags.StringVar(&dispatchContent, "content", "", "Message content")
	flags.StringVar(&dispatchPayload, "payload", "", `JSON object file with payload fields, "-" for stdin`)
	flags.DurationVar(&dispatchDeadline, "deadline", 0, "Cancel the dispatch after this long (0 = no deadline)")

	_ = dispatchCmd.MarkFlagRequired("event")
}

func runDispatch(cmd *cobra.Command, _ []string) error {
	payload, err := buildPayload(cmd.InOrStdin())
	if err != nil {
		return err
	}

	e, _, log, err := newEngine(cmd)
	if err != nil {
		return err
	}

	defer e.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dispatchDeadline > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, dispatchDeadline)
		defer cancel()
	}

	event := hook.Event(dispatchEvent)
	recordCrashDispatch(event, payload)

	decision := e.Dispatch(ctx, event, payload)

	log.Info("dispatch finished", "event", event, "decision", decision.String())

	enc := json.NewEncoder(cmd.OutOrStdout())
	if err := enc.Encode(decision); err != nil {
		return errors.Wrap(err, "writing decision")
	}

	if !decision.Allowed {
		return &exitError{code: ExitCodeDenied}
	}

	return nil
}

// buildPayload merges the --payload object with the field flags.
func buildPayload(stdin io.Reader) (hook.Payload, error) {
	payload := hook.Payload{}

	if dispatchPayload != "" {
		var (
			data []byte
			err  error
		)

		if dispatchPayload == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(dispatchPayload)
		}

		if err != nil {
			return nil, errors.Wrap(err, "reading payload")
		}

		obj, err := decodeJSON[map[string]any](data)
		if err != nil {
			return nil, errors.Wrap(err, "--payload")
		}

		if obj != nil {
			payload = obj
		}
	}

	if dispatchSession != "" {
		payload[hook.FieldSessionKey] = dispatchSession
	}

	if dispatchTool != "" {
		payload[hook.FieldToolName] = dispatchTool
	}

	if dispatchContent != "" {
		payload[hook.FieldContent] = dispatchContent
	}

	if dispatchArguments != "" {
		args, err := decodeJSON[map[string]any]([]byte(dispatchArguments))
		if err != nil {
			return nil, errors.Wrap(err, "--arguments")
		}

		payload[hook.FieldArguments] = args
	}

	if dispatchResult != "" {
		result, err := decodeJSON[any]([]byte(dispatchResult))
		if err != nil {
			return nil, errors.Wrap(err, "--result")
		}

		payload[hook.FieldResult] = result
	}

	return payload, nil
}

// decodeJSON decodes one JSON value, keeping numbers exact.
func decodeJSON[T any](data []byte) (T, error) {
	var v T

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(&v); err != nil {
		return v, errors.Wrap(err, "invalid JSON")
	}

	if dec.More() {
		return v, errors.New("invalid JSON: trailing data")
	}

	return v, nil
}
