package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/smykla-skalski/hookgate/internal/engine"
	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

// maxRequestSize bounds one request line.
const maxRequestSize = 4 << 20

var serveNoWatch bool

// serveRequest is one line read by serve.
type serveRequest struct {
	ID      string       `json:"id,omitempty"`
	Event   hook.Event   `json:"event"`
	Payload hook.Payload `json:"payload"`
}

// serveResponse is one line written by serve.
type serveResponse struct {
	ID       string         `json:"id,omitempty"`
	Decision *hook.Decision `json:"decision,omitempty"`
	Error    string         `json:"error,omitempty"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Dispatch events read as JSON lines from stdin",
	Long: `Read one request per line from stdin and write one response per line to
stdout, until stdin is closed.

Request:   {"id": "1", "event": "BeforeToolCall", "payload": {"tool_name": "exec"}}
Response:  {"id": "1", "decision": {"allowed": true, "payload": {...}}}

Malformed requests get {"id": ..., "error": "..."}. Configuration files are
watched and hooks reloaded on change unless --no-watch is set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload hooks when config files change")
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, loader, log, err := newEngine(cmd)
	if err != nil {
		return err
	}

	defer e.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	if !serveNoWatch {
		g.Go(func() error {
			return e.Watch(ctx, loader)
		})
	}

	g.Go(func() (err error) {
		defer cancel()
		defer func() {
			if recovered := recover(); recovered != nil {
				err = capturePanic(recovered, cmd.ErrOrStderr())
			}
		}()

		return serveLoop(ctx, e, log, cmd.InOrStdin(), cmd.OutOrStdout())
	})

	return g.Wait()
}

// serveLoop handles requests in order until in is exhausted or ctx is done.
// Lines are read on a separate goroutine so a cancelled ctx ends the loop
// even while stdin is idle.
func serveLoop(ctx context.Context, e *engine.Engine, log logger.Logger, in io.Reader, out io.Writer) error {
	lines, readErr := readLines(ctx, in)
	enc := json.NewEncoder(out)

	for {
		var (
			line []byte
			ok   bool
		)

		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
		}

		if !ok {
			return errors.Wrap(<-readErr, "reading requests")
		}

		resp := handleRequest(ctx, e, line)

		if resp.Error != "" {
			log.Warn("invalid serve request", "id", resp.ID, "error", resp.Error)
		}

		if err := enc.Encode(resp); err != nil {
			return errors.Wrap(err, "writing response")
		}
	}
}

// readLines scans non-empty lines from in. The lines channel is closed at
// EOF or on a read error, which is then sent on the error channel. A reader
// stuck in a blocking read is left behind once ctx is done.
func readLines(ctx context.Context, in io.Reader) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64<<10), maxRequestSize)

		for scanner.Scan() {
			if len(scanner.Bytes()) == 0 {
				continue
			}

			select {
			case lines <- bytes.Clone(scanner.Bytes()):
			case <-ctx.Done():
				errc <- nil

				return
			}
		}

		errc <- scanner.Err()
	}()

	return lines, errc
}

func handleRequest(ctx context.Context, e *engine.Engine, line []byte) serveResponse {
	req, err := decodeJSON[serveRequest](line)
	if err != nil {
		return serveResponse{ID: req.ID, Error: err.Error()}
	}

	if req.Event == "" {
		return serveResponse{ID: req.ID, Error: "request has no event"}
	}

	if req.Payload == nil {
		req.Payload = hook.Payload{}
	}

	recordCrashDispatch(req.Event, req.Payload)

	decision := e.Dispatch(ctx, req.Event, req.Payload)

	return serveResponse{ID: req.ID, Decision: &decision}
}
