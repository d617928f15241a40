// Package verdict turns a hook invocation record into a typed verdict.
package verdict

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/smykla-skalski/hookgate/internal/schema"
	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

// Parser applies the verdict rules in order:
//
//  1. timed out, spawn failed or cancelled: Continue (fail-open)
//  2. non-zero exit: Block with the trimmed stderr, or a generated reason
//  3. zero exit, blank stdout: Continue
//  4. zero exit, stdout valid against the output schema with action
//     "modify" and non-null data: Modify
//  5. anything else: Continue with a malformed-output diagnostic
//
// A Block or Modify the event does not allow is downgraded to Continue.
// Every diagnostic is logged.
type Parser struct {
	catalog hook.Catalog
	output  *jsonschema.Schema
	logger  logger.Logger
}

// New compiles the hook output schema and returns a Parser for catalog.
func New(catalog hook.Catalog, log logger.Logger) (*Parser, error) {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	output, err := compileOutputSchema()
	if err != nil {
		return nil, err
	}

	return &Parser{catalog: catalog, output: output, logger: log}, nil
}

func compileOutputSchema() (*jsonschema.Schema, error) {
	raw, err := schema.OutputJSON()
	if err != nil {
		return nil, err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "decoding hook output schema")
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schema.OutputSchemaURL, doc); err != nil {
		return nil, errors.Wrap(err, "adding hook output schema")
	}

	compiled, err := c.Compile(schema.OutputSchemaURL)
	if err != nil {
		return nil, errors.Wrap(err, "compiling hook output schema")
	}

	return compiled, nil
}

// Parse derives the verdict of rec for event.
func (p *Parser) Parse(event hook.Event, rec *hook.InvocationRecord) hook.Verdict {
	v := p.classify(rec)

	if !v.IsContinue() {
		if spec := p.catalog.Spec(event); !spec.Allows(v.Kind) {
			v = hook.ContinueWith(errors.Wrapf(
				hook.ErrIllegalVerdict,
				"%s is not allowed for %s",
				v.Kind,
				event,
			))
		}
	}

	if v.Diagnostic != nil {
		p.logDiagnostic(event, rec, v.Diagnostic)
	}

	return v
}

func (p *Parser) classify(rec *hook.InvocationRecord) hook.Verdict {
	switch rec.Outcome {
	case hook.OutcomeTimedOut:
		return hook.ContinueWith(errors.Wrap(hook.ErrTimeout, rec.Error))
	case hook.OutcomeSpawnFailed:
		return hook.ContinueWith(errors.Wrap(hook.ErrSpawnFailed, rec.Error))
	case hook.OutcomeCancelled:
		return hook.ContinueWith(errors.Wrap(hook.ErrCancelled, rec.Error))
	}

	if code := rec.Code(); code != 0 {
		reason := strings.TrimSpace(rec.Stderr)
		if reason == "" {
			reason = fmt.Sprintf("%s blocked (exit %d)", rec.HookName, code)
		}

		return hook.Block(reason)
	}

	stdout := strings.TrimSpace(rec.Stdout)
	if stdout == "" {
		return hook.Continue()
	}

	data, err := p.parseModify(stdout)
	if err != nil {
		return hook.ContinueWith(errors.Mark(err, hook.ErrMalformedModifyOutput))
	}

	return hook.Modify(data)
}

// parseModify validates stdout against the output schema and returns the
// modify data.
func (p *Parser) parseModify(stdout string) (any, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(stdout))
	if err != nil {
		return nil, errors.Wrap(err, "stdout is not JSON")
	}

	if err := p.output.Validate(doc); err != nil {
		return nil, errors.Wrap(err, "stdout does not match the hook output schema")
	}

	// The schema guarantees an object with a string action.
	msg, _ := doc.(map[string]any)

	if action := msg["action"]; action != hook.ActionModify {
		return nil, errors.Newf("unknown action %q", action)
	}

	data, ok := msg["data"]
	if !ok || data == nil {
		return nil, errors.New("modify output has no data")
	}

	return data, nil
}

func (p *Parser) logDiagnostic(event hook.Event, rec *hook.InvocationRecord, diag error) {
	kv := []any{
		"hook", rec.HookName,
		"event", event,
		"outcome", rec.Outcome,
		"id", rec.ID,
		"error", diag,
	}

	if errors.Is(diag, hook.ErrCancelled) {
		p.logger.Debug("hook cancelled", kv...)

		return
	}

	p.logger.Warn("hook verdict downgraded to continue", kv...)
}
