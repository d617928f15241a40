package audit

import (
	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

// LogSink writes one structured log line per record. Fail-open outcomes are
// logged at warn level.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// Record logs rec.
func (s *LogSink) Record(rec *hook.InvocationRecord) {
	kv := []any{
		"id", rec.ID,
		"hook", rec.HookName,
		"event", rec.Event,
		"session", rec.SessionKey,
		"outcome", rec.Outcome,
		"duration", rec.Duration(),
	}

	if rec.ExitCode != nil {
		kv = append(kv, "exit_code", *rec.ExitCode)
	}

	if rec.StdoutTruncated || rec.StderrTruncated {
		kv = append(kv, "stdout_truncated", rec.StdoutTruncated, "stderr_truncated", rec.StderrTruncated)
	}

	if rec.Error != "" {
		kv = append(kv, "error", rec.Error)
	}

	switch rec.Outcome {
	case hook.OutcomeOK:
		s.logger.Debug("hook invoked", kv...)
	case hook.OutcomeCancelled:
		s.logger.Info("hook cancelled", kv...)
	default:
		s.logger.Warn("hook failed open", kv...)
	}
}
