package notify

import (
	"log"
	"sync"

	"fileconverter/models"
)

const subscriberBuffer = 16

// Hub is a publish/subscribe registry keyed by job id. Events are
// fan-out only: a subscriber that joins late misses earlier events, and
// there is no replay. Publish never blocks and never fails the caller.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan models.ProgressEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan models.ProgressEvent]struct{})}
}

// Subscribe registers interest in a job's progress events. The
// returned cancel func removes the subscription and closes the
// channel; calling it more than once is safe.
func (h *Hub) Subscribe(jobID string) (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, subscriberBuffer)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan models.ProgressEvent]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[jobID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, jobID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish broadcasts an event to all current subscribers of the job id.
// A full subscriber buffer drops the event for that subscriber rather
// than blocking the publisher's critical path.
func (h *Hub) Publish(evt models.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[evt.JobID] {
		select {
		case ch <- evt:
		default:
			log.Printf("[Hub] Dropping progress event for slow subscriber (job %s)", evt.JobID)
		}
	}
}

// SubscriberCount reports how many subscribers a job currently has.
func (h *Hub) SubscriberCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}
