package feed

import (
	"context"
	"testing"
	"time"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := New("prayers", time.Minute)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := bus.Subscribe(ctx)
	second := bus.Subscribe(ctx)

	bus.Publish(Event{Type: TypePrayerCreated, PrayerID: "p1"})

	for i, ch := range []<-chan Event{first, second} {
		select {
		case evt := <-ch:
			if evt.Type != TypePrayerCreated || evt.PrayerID != "p1" {
				t.Fatalf("subscriber %d: unexpected event %+v", i, evt)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out waiting for event", i)
		}
	}
}

func TestSubscriberOnlySeesEventsAfterAttach(t *testing.T) {
	bus := New("prayers", time.Minute)
	defer bus.Close()

	bus.Publish(Event{Type: TypePrayerCreated, PrayerID: "before"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := bus.Subscribe(ctx)

	bus.Publish(Event{Type: TypePrayerCreated, PrayerID: "after"})

	select {
	case evt := <-ch:
		if evt.PrayerID != "after" {
			t.Fatalf("expected only post-attach event, got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeContextCancelClosesChannel(t *testing.T) {
	bus := New("prayers", time.Minute)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestIdleSubscriberReceivesPing(t *testing.T) {
	bus := New("prayers", 20*time.Millisecond)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := bus.Subscribe(ctx)

	select {
	case evt := <-ch:
		if evt.Type != TypePing {
			t.Fatalf("expected ping, got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for keep-alive ping")
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := New("prayers", time.Minute)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Subscribe(ctx) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: TypePrayerCreated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestCloseDetachesSubscribers(t *testing.T) {
	bus := New("prayers", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := bus.Subscribe(ctx)

	bus.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel after bus close")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after bus close")
	}

	// Publish after close must be a no-op, not a panic.
	bus.Publish(Event{Type: TypePrayerCreated})
}

func TestSubscriberHooksTrackAttachDetach(t *testing.T) {
	attach := make(chan struct{}, 2)
	detach := make(chan struct{}, 2)
	bus := New("prayers", time.Minute, WithSubscriberHooks(
		func() { attach <- struct{}{} },
		func() { detach <- struct{}{} },
	))
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx)

	select {
	case <-attach:
	case <-time.After(time.Second):
		t.Fatal("attach hook not fired")
	}

	cancel()
	for range ch {
	}

	select {
	case <-detach:
	case <-time.After(time.Second):
		t.Fatal("detach hook not fired")
	}
}
