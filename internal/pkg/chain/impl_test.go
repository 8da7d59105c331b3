package chain_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/wager/internal/pkg/chain"
)

var errBoom = errors.New("boom")

func quietRuntime(sink chan<- chain.Event) *chain.Runtime {
	return chain.New(
		chain.WithSink(sink),
		chain.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func set(ctx context.Context, v *int, to int) {
	chain.Set(ctx, v, to)
}

func TestExecuteCommitPublishesEvents(t *testing.T) {
	t.Parallel()

	sink := make(chan chain.Event, 4)
	rt := quietRuntime(sink)

	value := 0
	err := rt.Execute(context.Background(), func(ctx context.Context) error {
		assert.True(t, chain.InFrame(ctx))
		set(ctx, &value, 7)
		chain.Emit(ctx, chain.Event{Name: "Set", Emitter: common.HexToAddress("0x01")})

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 7, value)
	require.Len(t, sink, 1)

	ev := <-sink
	assert.Equal(t, "Set", ev.Name)
	assert.Equal(t, uint64(1), ev.Seq)
	assert.False(t, ev.Time.IsZero())
	assert.Equal(t, uint64(1), rt.Seq())
}

func TestExecuteFailureRevertsEverything(t *testing.T) {
	t.Parallel()

	sink := make(chan chain.Event, 4)
	rt := quietRuntime(sink)

	value := 1
	err := rt.Execute(context.Background(), func(ctx context.Context) error {
		set(ctx, &value, 2)
		set(ctx, &value, 3)
		chain.Emit(ctx, chain.Event{Name: "Set"})

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, 1, value)
	assert.Empty(t, sink)
	assert.Equal(t, uint64(0), rt.Seq())
}

func TestNestedFailureRevertsOnlyNestedFrame(t *testing.T) {
	t.Parallel()

	sink := make(chan chain.Event, 4)
	rt := quietRuntime(sink)

	outer, inner := 0, 0
	err := rt.Execute(context.Background(), func(ctx context.Context) error {
		set(ctx, &outer, 1)
		chain.Emit(ctx, chain.Event{Name: "Outer"})

		nestedErr := rt.Execute(ctx, func(ctx context.Context) error {
			set(ctx, &inner, 1)
			chain.Emit(ctx, chain.Event{Name: "Inner"})

			return errBoom
		})
		assert.ErrorIs(t, nestedErr, errBoom)

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, outer)
	assert.Equal(t, 0, inner)
	require.Len(t, sink, 1)
	assert.Equal(t, "Outer", (<-sink).Name)
}

func TestPanicRevertsAndPropagates(t *testing.T) {
	t.Parallel()

	rt := quietRuntime(nil)

	value := 0
	assert.Panics(t, func() {
		_ = rt.Execute(context.Background(), func(ctx context.Context) error {
			set(ctx, &value, 5)
			panic("abort")
		})
	})
	assert.Equal(t, 0, value)

	// lock must be released after the panic
	err := rt.Execute(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestRecordOutsideFrameIsFinal(t *testing.T) {
	t.Parallel()

	value := 0
	set(context.Background(), &value, 4)

	assert.Equal(t, 4, value)
	assert.False(t, chain.InFrame(context.Background()))
}

func TestExecuteRejectsCanceledContext(t *testing.T) {
	t.Parallel()

	rt := quietRuntime(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := rt.Execute(ctx, func(context.Context) error {
		called = true

		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestPutRestoresMissingAndExistingKeys(t *testing.T) {
	t.Parallel()

	rt := quietRuntime(nil)
	m := map[string]int{"kept": 1}

	err := rt.Execute(context.Background(), func(ctx context.Context) error {
		chain.Put(ctx, m, "kept", 2)
		chain.Put(ctx, m, "added", 3)

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, map[string]int{"kept": 1}, m)
}

func TestCloseWaitsForFrameInFlight(t *testing.T) {
	t.Parallel()

	sink := make(chan chain.Event, 4)
	rt := quietRuntime(sink)

	entered := make(chan struct{})
	release := make(chan struct{})
	committed := make(chan error, 1)

	go func() {
		committed <- rt.Execute(context.Background(), func(ctx context.Context) error {
			close(entered)
			<-release
			chain.Emit(ctx, chain.Event{Name: "Late"})

			return nil
		})
	}()

	<-entered

	closed := make(chan struct{})

	go func() {
		rt.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a frame was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-closed
	require.NoError(t, <-committed)

	// Closing the sink is safe now: later frames never reach it.
	close(sink)

	ev, ok := <-sink
	require.True(t, ok)
	assert.Equal(t, "Late", ev.Name)

	err := rt.Execute(context.Background(), func(ctx context.Context) error {
		chain.Emit(ctx, chain.Event{Name: "TooLate"})

		return nil
	})
	require.ErrorIs(t, err, chain.ErrClosed)

	_, ok = <-sink
	assert.False(t, ok)
}
