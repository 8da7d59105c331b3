// Package chain runs component operations as atomic, strictly serialized
// frames. Mutations register undo closures with Record and are rolled back
// when the frame that made them fails; frames nest when a call re-enters a
// component while another operation is still running.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrClosed = errors.New("runtime closed")

type frameKey struct{}

type Runtime struct {
	mu sync.Mutex

	sink   chan<- Event
	logger *slog.Logger
	now    func() time.Time

	seq    uint64
	closed bool
}

type Option func(*Runtime)

// WithSink publishes every committed event to ch.
func WithSink(ch chan<- Event) Option {
	return func(r *Runtime) {
		r.sink = ch
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithStartSeq continues numbering after seq, the last sequence number a
// previous run committed.
func WithStartSeq(seq uint64) Option {
	return func(r *Runtime) {
		r.seq = seq
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runtime) {
		r.now = now
	}
}

func New(opts ...Option) *Runtime {
	r := &Runtime{
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Execute runs fn as a frame. The outermost frame holds the runtime lock until
// it commits or reverts; a frame started from inside another one (ctx already
// carries a frame) runs without locking and reverts only its own changes.
func (r *Runtime) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if f, ok := ctx.Value(frameKey{}).(*frame); ok {
		return f.run(ctx, fn)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("frame not started: %w", err)
	}

	f := &frame{}

	err = f.run(context.WithValue(ctx, frameKey{}, f), fn)
	if err != nil {
		return err
	}

	r.publish(f.events)

	return nil
}

// View runs a read-only fn under the same serialization as Execute, so
// readers never observe a frame that is still in flight.
func (r *Runtime) View(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.Execute(ctx, fn)
}

// Close waits for the frame in flight, if any, and rejects every later one
// with ErrClosed. Once it returns nothing is sent to the sink again.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
}

// Seq is the sequence number of the last committed event.
func (r *Runtime) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.seq
}

func (r *Runtime) publish(events []Event) {
	for _, ev := range events {
		r.seq++
		ev.Seq = r.seq
		ev.Time = r.now().UTC()

		args := make([]any, 0, 6+2*len(ev.Attributes))
		args = append(args, "seq", ev.Seq, "emitter", ev.Emitter.Hex())

		for k, v := range ev.Attributes {
			args = append(args, k, v)
		}

		r.logger.Info(ev.Name, args...)

		if r.sink != nil {
			r.sink <- ev
		}
	}
}

func (f *frame) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	journalMark, eventMark := len(f.journal), len(f.events)

	defer func() {
		if p := recover(); p != nil {
			f.revert(journalMark, eventMark)
			panic(p)
		}
	}()

	err = fn(ctx)
	if err != nil {
		f.revert(journalMark, eventMark)
	}

	return err
}

func (f *frame) revert(journalMark, eventMark int) {
	for i := len(f.journal) - 1; i >= journalMark; i-- {
		f.journal[i]()
	}

	f.journal = f.journal[:journalMark]
	f.events = f.events[:eventMark]
}

// Record registers undo for a mutation that was just applied. Outside of a
// frame the mutation is final and undo is dropped.
func Record(ctx context.Context, undo func()) {
	if f, ok := ctx.Value(frameKey{}).(*frame); ok {
		f.journal = append(f.journal, undo)
	}
}

// Put stores m[k] = v and records how to restore the previous entry.
func Put[K comparable, V any](ctx context.Context, m map[K]V, k K, v V) {
	old, had := m[k]
	m[k] = v

	Record(ctx, func() {
		if had {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

// Set assigns *ptr = v and records the previous value.
func Set[T any](ctx context.Context, ptr *T, v T) {
	old := *ptr
	*ptr = v

	Record(ctx, func() { *ptr = old })
}

// Emit buffers ev until the outermost frame commits.
func Emit(ctx context.Context, ev Event) {
	if f, ok := ctx.Value(frameKey{}).(*frame); ok {
		f.events = append(f.events, ev)
	}
}

func InFrame(ctx context.Context) bool {
	_, ok := ctx.Value(frameKey{}).(*frame)

	return ok
}
