// Package audit records append-only audit entries for discovery runs and
// pipeline stages. Writing is asynchronous and best-effort: a failing or slow
// sink never fails or blocks the operation being audited.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/pkg/logger"
)

// DefaultBufferSize is used when the configured size is not positive
const DefaultBufferSize = 256

// sinkTimeout bounds a single sink write
const sinkTimeout = 10 * time.Second

// Sink persists audit entries somewhere
type Sink interface {
	Name() string
	Write(ctx context.Context, entry *models.AuditLogEntry) error
}

// Recorder is what operations depend on to audit themselves
type Recorder interface {
	Record(entry *models.AuditLogEntry)
}

type request struct {
	entry *models.AuditLogEntry
	done  chan struct{}
}

// Logger fans entries out to its sinks from a single writer goroutine
type Logger struct {
	queue  chan request
	sinks  []Sink
	onDrop func()
	log    *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option customizes a Logger
type Option func(*Logger)

// WithDropHook is called every time an entry is dropped because the buffer is full
func WithDropHook(fn func()) Option {
	return func(l *Logger) { l.onDrop = fn }
}

// NewLogger starts the writer goroutine. Call Close to drain and stop it.
func NewLogger(bufferSize int, log *logger.Logger, sinks []Sink, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	l := &Logger{
		queue: make(chan request, bufferSize),
		sinks: sinks,
		log:   log.WithComponent("audit"),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Logger) run() {
	defer l.wg.Done()
	for req := range l.queue {
		if req.entry != nil {
			l.write(req.entry)
		}
		if req.done != nil {
			close(req.done)
		}
	}
}

func (l *Logger) write(entry *models.AuditLogEntry) {
	for _, sink := range l.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		err := sink.Write(ctx, entry)
		cancel()
		if err != nil {
			l.log.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("action", string(entry.Action)).
				Msg("Audit write failed")
		}
	}
}

// Record enqueues an entry without blocking. Entries are dropped, with a
// warning, when the buffer is full or the logger is closed.
func (l *Logger) Record(entry *models.AuditLogEntry) {
	if entry == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.log.Warn().Str("action", string(entry.Action)).Msg("Audit logger closed, dropping entry")
		return
	}

	select {
	case l.queue <- request{entry: entry}:
	default:
		l.log.Warn().Str("action", string(entry.Action)).Msg("Audit buffer full, dropping entry")
		if l.onDrop != nil {
			l.onDrop()
		}
	}
}

// Flush waits until every entry recorded before the call has been written
func (l *Logger) Flush(ctx context.Context) error {
	done := make(chan struct{})

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil
	}
	select {
	case l.queue <- request{done: done}:
		l.mu.RUnlock()
	case <-ctx.Done():
		l.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains queued entries and stops the writer. It is safe to call twice.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()

	var errs []error
	for _, sink := range l.sinks {
		if c, ok := sink.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Nop discards every entry
type Nop struct{}

func (Nop) Record(*models.AuditLogEntry) {}

var (
	_ Recorder = (*Logger)(nil)
	_ Recorder = Nop{}
)
