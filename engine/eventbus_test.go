package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"cyberquest/core"
)

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventScoreAdded, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewScoreAdded("s", core.CategoryDigitalLiteracy, 1, 1))
	bus.Publish(context.Background(), core.NewSessionReset("s"))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventScoreAdded, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), core.NewScoreAdded("s", core.CategoryDigitalLiteracy, 1, 1))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusSubscribeAllAndUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	var seen []core.EventType
	unsub := bus.SubscribeAll(func(ctx context.Context, e core.Event) { seen = append(seen, e.Type) })
	bus.Publish(context.Background(), core.NewLevelCompleted("s", 1, 3))
	bus.Publish(context.Background(), core.NewLevelUnlocked("s", 2))
	unsub()
	bus.Publish(context.Background(), core.NewSessionReset("s"))
	if len(seen) != 2 || seen[0] != core.EventLevelCompleted || seen[1] != core.EventLevelUnlocked {
		t.Fatalf("unexpected events %v", seen)
	}
}

func TestEventBusCloseDrainsQueue(t *testing.T) {
	bus := NewEventBus(DispatchAsync, WithWorkers(1), WithQueueSize(64))
	var delivered atomic.Int64
	bus.SubscribeAll(func(ctx context.Context, e core.Event) {
		time.Sleep(time.Millisecond)
		delivered.Add(1)
	})
	for i := 0; i < 20; i++ {
		bus.Publish(context.Background(), core.NewSessionReset("s"))
	}
	bus.Close()
	if got := delivered.Load(); got != 20 {
		t.Fatalf("want 20 delivered got %d", got)
	}
	// publishing after close must not panic
	bus.Publish(context.Background(), core.NewSessionReset("s"))
	bus.Close()
}

func TestEventBusRecoversHandlerPanic(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	called := false
	bus.Subscribe(core.EventSessionReset, func(ctx context.Context, e core.Event) { panic("boom") })
	bus.SubscribeAll(func(ctx context.Context, e core.Event) { called = true })
	bus.Publish(context.Background(), core.NewSessionReset("s"))
	if !called {
		t.Fatal("a panicking handler must not starve the others")
	}
}
