package jobs

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// EventKind discriminates progress event variants.
type EventKind string

const (
	EventSubscribed      EventKind = "SUBSCRIBED"
	EventProgress        EventKind = "PROGRESS"
	EventContactStart    EventKind = "CONTACT_START"
	EventContactComplete EventKind = "CONTACT_COMPLETE"
	EventContactFailed   EventKind = "CONTACT_FAILED"
	EventJobComplete     EventKind = "JOB_COMPLETE"
)

// Progress carries aggregate counters for a PROGRESS event.
type Progress struct {
	Completed       int `json:"completed"`
	Failed          int `json:"failed"`
	Total           int `json:"total"`
	PercentComplete int `json:"percentComplete"`
}

// Summary carries final counters for a JOB_COMPLETE event.
type Summary struct {
	Status        model.JobStatus `json:"status"`
	SuccessCount  int             `json:"successCount"`
	FailureCount  int             `json:"failureCount"`
	TotalContacts int             `json:"totalContacts"`
}

// Event is a single lifecycle event for a job. Kind decides which optional
// fields are set.
type Event struct {
	Kind        EventKind `json:"type"`
	JobID       string    `json:"jobId"`
	ContactID   string    `json:"contactId,omitempty"`
	ContactName string    `json:"contactName,omitempty"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	Progress    *Progress `json:"progress,omitempty"`
	Summary     *Summary  `json:"summary,omitempty"`
}

// progressFrom builds a Progress payload from a job snapshot.
func progressFrom(snap model.JobSnapshot) *Progress {
	return &Progress{
		Completed:       snap.SuccessCount,
		Failed:          snap.FailureCount,
		Total:           snap.TotalContacts,
		PercentComplete: snap.PercentComplete(),
	}
}

// subscriberBuffer bounds each subscriber channel. A subscriber that cannot
// keep up loses events rather than stalling the scheduler; the pull endpoint
// remains authoritative.
const subscriberBuffer = 64

// Emitter fans lifecycle events out to per-job subscriber channels.
type Emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Event // job id -> subscriber id -> channel
}

// NewEmitter creates an event emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{
		subs: make(map[string]map[int]chan Event),
	}
}

// Subscribe registers interest in one job's events. The returned cancel
// function closes the channel and removes the subscription.
func (e *Emitter) Subscribe(jobID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	if e.subs[jobID] == nil {
		e.subs[jobID] = make(map[int]chan Event)
	}
	e.subs[jobID][id] = ch
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if m, ok := e.subs[jobID]; ok {
			if c, ok := m[id]; ok {
				delete(m, id)
				close(c)
			}
			if len(m) == 0 {
				delete(e.subs, jobID)
			}
		}
	}
	return ch, cancel
}

// Emit delivers an event to every subscriber of its job. Delivery is
// non-blocking: full subscriber buffers drop the event.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
			zap.L().Warn("event dropped for slow subscriber",
				zap.String("job_id", ev.JobID),
				zap.String("kind", string(ev.Kind)),
			)
		}
	}
}

// SubscriberCount reports active subscriptions for a job.
func (e *Emitter) SubscriberCount(jobID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs[jobID])
}
