// Package jobs implements the in-memory batch research orchestrator: the job
// table, the typed progress event stream, and the grouped-concurrency
// scheduler that drives contacts through the enrichment provider.
package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Sentinel errors for job and contact lookups. Retry preconditions
// distinguish a missing contact from a contact in the wrong state.
var (
	ErrJobNotFound     = eris.New("jobs: job not found")
	ErrContactNotFound = eris.New("jobs: contact not found in job")
	ErrNotRetryable    = eris.New("jobs: contact is not in failed state")
	ErrNoContacts      = eris.New("jobs: contact list is empty")
)

// job is the mutable record behind a BatchJob. All access goes through the
// Store mutex; callers only ever see snapshots.
type job struct {
	id          string
	status      model.JobStatus
	order       []string // contact ids in submission order
	contacts    map[string]*model.ContactResult
	success     int
	failure     int
	errMsg      string
	lastControl model.ControlAction
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
}

func (j *job) snapshot() model.JobSnapshot {
	snap := model.JobSnapshot{
		JobID:             j.id,
		Status:            j.status,
		TotalContacts:     len(j.order),
		ProcessedContacts: j.success + j.failure,
		SuccessCount:      j.success,
		FailureCount:      j.failure,
		Error:             j.errMsg,
		LastControl:       j.lastControl,
		CreatedAt:         j.createdAt,
		StartedAt:         j.startedAt,
		CompletedAt:       j.completedAt,
	}
	snap.Contacts = make([]model.ContactResult, 0, len(j.order))
	for _, id := range j.order {
		snap.Contacts = append(snap.Contacts, *j.contacts[id])
	}
	return snap
}

// Store is an in-memory table of batch jobs. Each process owns its own Store;
// jobs are lost on restart and never deleted unless PruneBefore is called.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job
	now  func() time.Time
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*job),
		now:  time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (s *Store) WithNow(now func() time.Time) *Store {
	s.now = now
	return s
}

// Create registers a new pending job covering the given contacts and returns
// its initial snapshot.
func (s *Store) Create(contacts []model.Contact) (model.JobSnapshot, error) {
	if len(contacts) == 0 {
		return model.JobSnapshot{}, ErrNoContacts
	}

	j := &job{
		id:        uuid.NewString(),
		status:    model.JobStatusPending,
		contacts:  make(map[string]*model.ContactResult, len(contacts)),
		createdAt: s.now(),
	}
	for _, c := range contacts {
		if _, dup := j.contacts[c.ID]; dup {
			return model.JobSnapshot{}, eris.Errorf("jobs: duplicate contact id %q", c.ID)
		}
		j.order = append(j.order, c.ID)
		j.contacts[c.ID] = &model.ContactResult{
			ContactID:   c.ID,
			ContactName: c.Name,
			Status:      model.ContactStatusPending,
		}
	}

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	return j.snapshot(), nil
}

// Snapshot returns a point-in-time copy of the job.
func (s *Store) Snapshot(jobID string) (model.JobSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return model.JobSnapshot{}, ErrJobNotFound
	}
	return j.snapshot(), nil
}

// Contact returns a copy of one contact's result.
func (s *Store) Contact(jobID, contactID string) (model.ContactResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return model.ContactResult{}, ErrJobNotFound
	}
	cr, ok := j.contacts[contactID]
	if !ok {
		return model.ContactResult{}, ErrContactNotFound
	}
	return *cr, nil
}

// MarkProcessing transitions a pending job to processing and stamps
// startedAt. Idempotent for jobs already past pending.
func (s *Store) MarkProcessing(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.status == model.JobStatusPending {
		j.status = model.JobStatusProcessing
		t := s.now()
		j.startedAt = &t
	}
	return nil
}

// StartContact marks one contact as processing and returns its copy.
func (s *Store) StartContact(jobID, contactID string) (model.ContactResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return model.ContactResult{}, ErrJobNotFound
	}
	cr, ok := j.contacts[contactID]
	if !ok {
		return model.ContactResult{}, ErrContactNotFound
	}
	cr.Status = model.ContactStatusProcessing
	t := s.now()
	cr.StartedAt = &t
	return *cr, nil
}

// CompleteContact records a successful enrichment and returns the updated
// job snapshot.
func (s *Store) CompleteContact(jobID, contactID, researchText string) (model.JobSnapshot, error) {
	return s.finishContact(jobID, contactID, func(cr *model.ContactResult) {
		cr.Status = model.ContactStatusCompleted
		cr.Research = researchText
		cr.Error = ""
	}, true)
}

// FailContact records an enrichment failure and returns the updated job
// snapshot. The error text is retained for display and retry.
func (s *Store) FailContact(jobID, contactID, errMsg string) (model.JobSnapshot, error) {
	return s.finishContact(jobID, contactID, func(cr *model.ContactResult) {
		cr.Status = model.ContactStatusFailed
		cr.Error = errMsg
	}, false)
}

func (s *Store) finishContact(jobID, contactID string, apply func(*model.ContactResult), success bool) (model.JobSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return model.JobSnapshot{}, ErrJobNotFound
	}
	cr, ok := j.contacts[contactID]
	if !ok {
		return model.JobSnapshot{}, ErrContactNotFound
	}
	apply(cr)
	t := s.now()
	cr.CompletedAt = &t
	if success {
		j.success++
	} else {
		j.failure++
	}
	return j.snapshot(), nil
}

// FinishJob moves a processing job to its terminal status: failed only when
// every contact failed, completed otherwise. Returns the final snapshot.
func (s *Store) FinishJob(jobID string) (model.JobSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return model.JobSnapshot{}, ErrJobNotFound
	}
	if !j.status.Terminal() {
		if j.failure == len(j.order) {
			j.status = model.JobStatusFailed
		} else {
			j.status = model.JobStatusCompleted
		}
		t := s.now()
		j.completedAt = &t
	}
	return j.snapshot(), nil
}

// FailJob marks the whole job failed with a driver-level error, regardless of
// per-contact outcomes. Used when the scheduling loop itself breaks.
func (s *Store) FailJob(jobID, errMsg string) (model.JobSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return model.JobSnapshot{}, ErrJobNotFound
	}
	j.status = model.JobStatusFailed
	j.errMsg = errMsg
	if j.completedAt == nil {
		t := s.now()
		j.completedAt = &t
	}
	return j.snapshot(), nil
}

// RecordControl stores the last acknowledged control action on the job.
// Control requests do not alter execution.
func (s *Store) RecordControl(jobID string, action model.ControlAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	j.lastControl = action
	return nil
}

// PruneBefore removes terminal jobs created before t and reports how many
// were removed. Nothing calls this on a timer; it exists for operator-driven
// cleanup.
func (s *Store) PruneBefore(t time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, j := range s.jobs {
		if j.status.Terminal() && j.createdAt.Before(t) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}
