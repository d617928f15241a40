package audit

import (
	"sync"
	"sync/atomic"

	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

// DefaultQueueSize is the number of records a Queue holds before dropping.
const DefaultQueueSize = 1024

// Queue hands records to a slow sink from a single background writer, so
// Record returns without waiting on disk. Records keep their order. When
// the buffer is full the record is dropped and counted.
type Queue struct {
	sink   Sink
	logger logger.Logger

	mu      sync.RWMutex
	closed  bool
	records chan *hook.InvocationRecord
	done    chan struct{}
	dropped atomic.Uint64
}

// NewQueue starts the writer for sink. A size below 1 uses DefaultQueueSize.
func NewQueue(sink Sink, size int, log logger.Logger) *Queue {
	if size < 1 {
		size = DefaultQueueSize
	}

	if log == nil {
		log = logger.NewNoOpLogger()
	}

	q := &Queue{
		sink:    sink,
		logger:  log,
		records: make(chan *hook.InvocationRecord, size),
		done:    make(chan struct{}),
	}

	go q.run()

	return q
}

func (q *Queue) run() {
	defer close(q.done)

	for rec := range q.records {
		q.sink.Record(rec)
	}
}

// Record enqueues rec. It never blocks.
func (q *Queue) Record(rec *hook.InvocationRecord) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return
	}

	select {
	case q.records <- rec:
	default:
		q.dropped.Add(1)
		q.logger.Warn("audit queue full, record dropped", "id", rec.ID, "hook", rec.HookName)
	}
}

// Dropped returns how many records were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops accepting records and waits until the queued ones are written.
// It does not close the underlying sink.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.records)
	}
	q.mu.Unlock()

	<-q.done
}
