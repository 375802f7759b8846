package notify

import (
	"testing"
	"time"

	"fileconverter/models"
)

func TestHub_PublishReachesSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	events, cancel := hub.Subscribe("job-1")
	defer cancel()

	hub.Publish(models.ProgressEvent{JobID: "job-1", Progress: 10, Status: models.StatusProcessing})

	select {
	case evt := <-events:
		if evt.Progress != 10 || evt.Status != models.StatusProcessing {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestHub_EventsKeyedByJobID(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	events, cancel := hub.Subscribe("job-a")
	defer cancel()

	hub.Publish(models.ProgressEvent{JobID: "job-b", Progress: 50, Status: models.StatusProcessing})

	select {
	case evt := <-events:
		t.Fatalf("received event for a different job: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_NoReplayForLateSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	hub.Publish(models.ProgressEvent{JobID: "job-1", Progress: 10, Status: models.StatusProcessing})

	events, cancel := hub.Subscribe("job-1")
	defer cancel()

	select {
	case evt := <-events:
		t.Fatalf("late subscriber received a replayed event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_PublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Publish(models.ProgressEvent{JobID: "nobody", Progress: 100, Status: models.StatusCompleted})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestHub_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	_, cancel := hub.Subscribe("job-1")
	defer cancel()

	// Overflow the subscriber buffer; every publish must return.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			hub.Publish(models.ProgressEvent{JobID: "job-1", Progress: i % 100, Status: models.StatusProcessing})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestHub_OrderPreservedPerSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	events, cancel := hub.Subscribe("job-1")
	defer cancel()

	sequence := []int{10, 30, 70, 100}
	for _, p := range sequence {
		hub.Publish(models.ProgressEvent{JobID: "job-1", Progress: p, Status: models.StatusProcessing})
	}

	for _, want := range sequence {
		select {
		case evt := <-events:
			if evt.Progress != want {
				t.Fatalf("got progress %d, want %d", evt.Progress, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event for progress %d", want)
		}
	}
}

func TestHub_CancelIsIdempotent(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	_, cancel := hub.Subscribe("job-1")
	cancel()
	cancel() // must not panic

	if n := hub.SubscriberCount("job-1"); n != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", n)
	}
}
