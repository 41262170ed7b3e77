package livebus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := New(NoopLogger())
	var count atomic.Int32

	for i := 0; i < 3; i++ {
		bus.Subscribe(TypeIRCompiled, func(ctx context.Context, event Event) error {
			count.Add(1)
			return nil
		})
	}

	err := bus.Publish(context.Background(), &IRCompiled{Path: "app.tsx", Dialect: "jsx"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), count.Load())
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	bus := New(NoopLogger())
	err := bus.Publish(context.Background(), &SourceChanged{Path: "x.dart"})
	require.NoError(t, err)
}

func TestSubscriberErrorDoesNotStopOthers(t *testing.T) {
	bus := New(NoopLogger())
	var succeeded atomic.Int32

	bus.Subscribe(TypeCompileFailed, func(ctx context.Context, event Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(TypeCompileFailed, func(ctx context.Context, event Event) error {
		succeeded.Add(1)
		return nil
	})

	err := bus.Publish(context.Background(), &CompileFailed{Path: "x.tsx", Reason: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, int32(1), succeeded.Load())
}

func TestUnsubscribe(t *testing.T) {
	bus := New(NoopLogger())
	var count atomic.Int32

	id := bus.Subscribe(TypeIRCompiled, func(ctx context.Context, event Event) error {
		count.Add(1)
		return nil
	})
	require.Equal(t, 1, bus.SubscriberCount(TypeIRCompiled))

	bus.Unsubscribe(TypeIRCompiled, id)
	assert.Equal(t, 0, bus.SubscriberCount(TypeIRCompiled))

	require.NoError(t, bus.Publish(context.Background(), &IRCompiled{Path: "a.tsx"}))
	assert.Equal(t, int32(0), count.Load())
}

func TestEventCarriesDocument(t *testing.T) {
	bus := New(NoopLogger())
	doc := &ir.IR{
		SchemaVersion: ir.SchemaVersion,
		Roots:         []string{"n"},
		Nodes:         map[string]*ir.Node{"n": {ID: "n", Kind: ir.KindView}},
	}

	var mu sync.Mutex
	var received *ir.IR
	bus.Subscribe(TypeIRCompiled, func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = event.(*IRCompiled).Doc
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), &IRCompiled{Path: "a.tsx", Doc: doc}))
	mu.Lock()
	defer mu.Unlock()
	assert.Same(t, doc, received)
}

func TestConcurrentPublish(t *testing.T) {
	bus := New(NoopLogger())
	var count atomic.Int32
	bus.Subscribe(TypeSourceChanged, func(ctx context.Context, event Event) error {
		count.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(context.Background(), &SourceChanged{Path: "p"})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(20), count.Load())
}
