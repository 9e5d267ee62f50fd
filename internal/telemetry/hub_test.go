package telemetry

import (
	"testing"
	"time"

	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/tuning"
)

func TestPublishReachesSubscriber(t *testing.T) {
	hub := NewHub(16)
	defer hub.Stop()

	sub := hub.Subscribe(0)
	defer sub.Close()

	code := tuning.Code{Coarse: 22, Mid: 15, Fine: 3}
	hub.Publish(EventChannelCalibrated, 17, registry.RX, code)

	select {
	case e := <-sub.C:
		if e.Type != EventChannelCalibrated {
			t.Errorf("got type %q, want %q", e.Type, EventChannelCalibrated)
		}
		if e.Channel != 17 || e.Mode != registry.RX || e.Code != code {
			t.Errorf("unexpected event payload: %+v", e)
		}
		if e.ID != 1 {
			t.Errorf("got event ID %d, want 1", e.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestSubscribeReplaysBufferedEvents(t *testing.T) {
	hub := NewHub(16)
	defer hub.Stop()

	code := tuning.Code{Coarse: 22, Mid: 15, Fine: 3}
	hub.Publish(EventChannelCalibrated, 17, registry.RX, code)
	hub.Publish(EventSweepAdvanced, 18, registry.RX, code)
	hub.Publish(EventSweepAdvanced, 19, registry.RX, code)

	sub := hub.Subscribe(1)
	defer sub.Close()

	want := []int{18, 19}
	for _, channel := range want {
		select {
		case e := <-sub.C:
			if e.Channel != channel {
				t.Errorf("replayed channel %d, want %d", e.Channel, channel)
			}
		case <-time.After(time.Second):
			t.Fatal("replayed event never delivered")
		}
	}
}

func TestEventIDsAreMonotonic(t *testing.T) {
	hub := NewHub(16)
	defer hub.Stop()

	code := tuning.Code{}
	for i := 0; i < 5; i++ {
		hub.Publish(EventSweepAdvanced, 11, registry.RX, code)
	}
	if got := hub.LastEventID(); got != 5 {
		t.Errorf("got last event ID %d, want 5", got)
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(16)
	defer hub.Stop()

	sub := hub.Subscribe(0)
	defer sub.Close()

	// Never drain the subscription; Publish must still return.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.Publish(EventSweepAdvanced, 11, registry.RX, tuning.Code{})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestStopClosesSubscriptions(t *testing.T) {
	hub := NewHub(16)
	sub := hub.Subscribe(0)
	hub.Stop()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Error("expected closed channel after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed after Stop")
	}
}

func TestBufferEvictsOldestAtCapacity(t *testing.T) {
	b := NewEventBuffer(3)
	for i := int64(1); i <= 5; i++ {
		b.AddEvent(Event{ID: i})
	}
	if got := b.Size(); got != 3 {
		t.Fatalf("got buffer size %d, want 3", got)
	}
	events := b.EventsAfter(0)
	if len(events) != 3 || events[0].ID != 3 || events[2].ID != 5 {
		t.Errorf("unexpected surviving events: %+v", events)
	}
}

func TestCloseDetachesSubscriber(t *testing.T) {
	hub := NewHub(16)
	defer hub.Stop()

	sub := hub.Subscribe(0)
	sub.Close()

	// Publishing after Close must not panic on a closed channel.
	hub.Publish(EventSweepAdvanced, 11, registry.RX, tuning.Code{})
}

func BenchmarkPublishNoSubscribers(b *testing.B) {
	hub := NewHub(64)
	defer hub.Stop()
	code := tuning.Code{Coarse: 22, Mid: 15, Fine: 3}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Publish(EventSweepAdvanced, 17, registry.RX, code)
	}
}

func BenchmarkPublishOneSubscriber(b *testing.B) {
	hub := NewHub(64)
	defer hub.Stop()
	sub := hub.Subscribe(0)
	defer sub.Close()
	go func() {
		for range sub.C {
		}
	}()
	code := tuning.Code{Coarse: 22, Mid: 15, Fine: 3}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Publish(EventSweepAdvanced, 17, registry.RX, code)
	}
}
