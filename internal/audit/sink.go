// Package audit delivers hook invocation records to logs, persistent
// stores and live subscribers.
package audit

import (
	"github.com/smykla-skalski/hookgate/pkg/hook"
)

// Sink receives exactly one record per hook invocation. Implementations are
// safe for concurrent use. Record runs on the dispatch path, so sinks doing
// I/O are put behind a Queue.
type Sink interface {
	Record(rec *hook.InvocationRecord)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec *hook.InvocationRecord)

// Record calls f.
func (f SinkFunc) Record(rec *hook.InvocationRecord) {
	f(rec)
}

// Discard drops every record.
var Discard Sink = SinkFunc(func(*hook.InvocationRecord) {})

type multiSink []Sink

// Multi fans records out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))

	for _, s := range sinks {
		switch s := s.(type) {
		case nil:
		case multiSink:
			out = append(out, s...)
		default:
			out = append(out, s)
		}
	}

	if len(out) == 1 {
		return out[0]
	}

	return out
}

func (m multiSink) Record(rec *hook.InvocationRecord) {
	for _, s := range m {
		s.Record(rec)
	}
}
