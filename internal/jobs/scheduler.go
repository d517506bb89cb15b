package jobs

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/contacts"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/research"
)

const (
	// DefaultConcurrency bounds in-flight enrichment calls per job.
	DefaultConcurrency = 2
	// DefaultGroupDelay is the pause between concurrency groups, throttling
	// aggregate request rate against the provider.
	DefaultGroupDelay = 2 * time.Second
)

// SchedulerConfig tunes the batch scheduler.
type SchedulerConfig struct {
	Concurrency int
	// GroupDelay is the pause between concurrency groups. Zero means
	// DefaultGroupDelay; pass a negative value to disable the pause.
	GroupDelay time.Duration
	// MaxAttempts is passed to the provider retry wrapper. Values below 1
	// default to 1 (no retries).
	MaxAttempts int
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	switch {
	case c.GroupDelay == 0:
		c.GroupDelay = DefaultGroupDelay
	case c.GroupDelay < 0:
		c.GroupDelay = 0
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	return c
}

// Orchestrator drives batch research jobs: it owns the job store, calls the
// enrichment provider under grouped concurrency, persists results to the
// contact store, and publishes lifecycle events.
type Orchestrator struct {
	store    *Store
	client   research.Client
	contacts contacts.Store // may be nil when no backing store is configured
	emitter  *Emitter
	cfg      SchedulerConfig
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(store *Store, client research.Client, contactStore contacts.Store, emitter *Emitter, cfg SchedulerConfig) *Orchestrator {
	return &Orchestrator{
		store:    store,
		client:   client,
		contacts: contactStore,
		emitter:  emitter,
		cfg:      cfg.withDefaults(),
	}
}

// Store exposes the job table for status reads.
func (o *Orchestrator) Store() *Store {
	return o.store
}

// Emitter exposes the event source for relays.
func (o *Orchestrator) Emitter() *Emitter {
	return o.emitter
}

// Submit creates a job for the contact list and starts processing it in the
// background. ctx should outlive the request that carried the submission;
// pass the server's lifetime context.
func (o *Orchestrator) Submit(ctx context.Context, list []model.Contact) (model.JobSnapshot, error) {
	snap, err := o.store.Create(list)
	if err != nil {
		return model.JobSnapshot{}, err
	}

	go o.run(ctx, snap.JobID, orderedContacts(list))

	zap.L().Info("batch job submitted",
		zap.String("job_id", snap.JobID),
		zap.Int("contacts", snap.TotalContacts),
	)
	return snap, nil
}

func orderedContacts(list []model.Contact) []model.Contact {
	out := make([]model.Contact, len(list))
	copy(out, list)
	return out
}

// run is the job driver loop. A panic or context failure here is a
// job-driver error: the whole job is marked failed even if some contacts
// already completed.
func (o *Orchestrator) run(ctx context.Context, jobID string, list []model.Contact) {
	defer func() {
		if r := recover(); r != nil {
			snap, err := o.store.FailJob(jobID, eris.Errorf("job driver panic: %v", r).Error())
			if err != nil {
				zap.L().Error("failed to record driver panic", zap.String("job_id", jobID), zap.Any("panic", r))
				return
			}
			zap.L().Error("job driver panicked", zap.String("job_id", jobID), zap.Any("panic", r))
			o.emitJobComplete(snap)
		}
	}()

	if err := o.store.MarkProcessing(jobID); err != nil {
		zap.L().Error("mark processing failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	groups := chunkContacts(list, o.cfg.Concurrency)
	for i, group := range groups {
		g, gctx := errgroup.WithContext(ctx)
		for _, c := range group {
			g.Go(func() error {
				o.processContact(gctx, jobID, c)
				return nil
			})
		}
		_ = g.Wait()

		if i == len(groups)-1 {
			break
		}
		select {
		case <-ctx.Done():
			snap, err := o.store.FailJob(jobID, eris.Wrap(ctx.Err(), "job driver interrupted").Error())
			if err == nil {
				o.emitJobComplete(snap)
			}
			return
		case <-time.After(o.cfg.GroupDelay):
		}
	}

	snap, err := o.store.FinishJob(jobID)
	if err != nil {
		zap.L().Error("finish job failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	zap.L().Info("batch job finished",
		zap.String("job_id", jobID),
		zap.String("status", string(snap.Status)),
		zap.Int("succeeded", snap.SuccessCount),
		zap.Int("failed", snap.FailureCount),
	)
	o.emitJobComplete(snap)
}

// processContact researches one contact and records its outcome. Failures
// are swallowed into the ContactResult; siblings are never affected.
func (o *Orchestrator) processContact(ctx context.Context, jobID string, c model.Contact) {
	if _, err := o.store.StartContact(jobID, c.ID); err != nil {
		zap.L().Error("start contact failed", zap.String("job_id", jobID), zap.String("contact_id", c.ID), zap.Error(err))
		return
	}
	o.emitter.Emit(Event{
		Kind:        EventContactStart,
		JobID:       jobID,
		ContactID:   c.ID,
		ContactName: c.Name,
	})
	if snap, err := o.store.Snapshot(jobID); err == nil {
		o.emitProgress(snap)
	}

	text, err := o.research(ctx, c)
	if err != nil {
		snap, storeErr := o.store.FailContact(jobID, c.ID, err.Error())
		if storeErr != nil {
			zap.L().Error("fail contact failed", zap.String("job_id", jobID), zap.String("contact_id", c.ID), zap.Error(storeErr))
			return
		}
		zap.L().Warn("contact research failed",
			zap.String("job_id", jobID),
			zap.String("contact_id", c.ID),
			zap.Error(err),
		)
		o.emitter.Emit(Event{
			Kind:        EventContactFailed,
			JobID:       jobID,
			ContactID:   c.ID,
			ContactName: c.Name,
			Error:       err.Error(),
		})
		o.emitProgress(snap)
		return
	}

	o.persistResearch(ctx, c.ID, text)

	snap, storeErr := o.store.CompleteContact(jobID, c.ID, text)
	if storeErr != nil {
		zap.L().Error("complete contact failed", zap.String("job_id", jobID), zap.String("contact_id", c.ID), zap.Error(storeErr))
		return
	}
	o.emitter.Emit(Event{
		Kind:        EventContactComplete,
		JobID:       jobID,
		ContactID:   c.ID,
		ContactName: c.Name,
		Result:      text,
	})
	o.emitProgress(snap)
}

// research calls the provider with transient-error retry.
func (o *Orchestrator) research(ctx context.Context, c model.Contact) (string, error) {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = o.cfg.MaxAttempts
	cfg.OnRetry = resilience.RetryLogger("research", "enrich")
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		return o.client.Research(ctx, research.Request{
			PersonName:  c.Name,
			Company:     c.Company,
			LinkedInURL: c.LinkedInURL,
		})
	})
}

// persistResearch writes the enrichment back to the contact record. A store
// failure is logged; the contact's research outcome stands.
func (o *Orchestrator) persistResearch(ctx context.Context, contactID, text string) {
	if o.contacts == nil {
		return
	}
	if err := o.contacts.UpdateResearch(ctx, contactID, text, []string{contacts.ResearchTag}); err != nil {
		zap.L().Warn("contact store update failed",
			zap.String("contact_id", contactID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) emitProgress(snap model.JobSnapshot) {
	o.emitter.Emit(Event{
		Kind:     EventProgress,
		JobID:    snap.JobID,
		Progress: progressFrom(snap),
	})
}

func (o *Orchestrator) emitJobComplete(snap model.JobSnapshot) {
	o.emitter.Emit(Event{
		Kind:  EventJobComplete,
		JobID: snap.JobID,
		Summary: &Summary{
			Status:        snap.Status,
			SuccessCount:  snap.SuccessCount,
			FailureCount:  snap.FailureCount,
			TotalContacts: snap.TotalContacts,
		},
	})
}

// RetryResult is the outcome of a single-contact retry.
type RetryResult struct {
	ContactID string              `json:"contactId"`
	Status    model.ContactStatus `json:"status"`
	Research  string              `json:"research,omitempty"`
}

// RetryContact re-runs enrichment for one failed contact synchronously. On
// success the backing contact record is updated; the original job's result
// map is left untouched.
func (o *Orchestrator) RetryContact(ctx context.Context, jobID, contactID string) (RetryResult, error) {
	cr, err := o.store.Contact(jobID, contactID)
	if err != nil {
		return RetryResult{}, err
	}
	if cr.Status != model.ContactStatusFailed {
		return RetryResult{}, ErrNotRetryable
	}

	text, err := o.research(ctx, model.Contact{ID: cr.ContactID, Name: cr.ContactName})
	if err != nil {
		return RetryResult{}, eris.Wrap(err, "jobs: retry research")
	}

	o.persistResearch(ctx, contactID, text)

	return RetryResult{
		ContactID: contactID,
		Status:    model.ContactStatusCompleted,
		Research:  text,
	}, nil
}

// Control acknowledges a pause/resume/cancel request. The action is recorded
// on the job for visibility but in-flight execution is not altered.
func (o *Orchestrator) Control(jobID string, action model.ControlAction) error {
	switch action {
	case model.ControlPause, model.ControlResume, model.ControlCancel:
	default:
		return eris.Errorf("jobs: unknown control action %q", action)
	}
	if err := o.store.RecordControl(jobID, action); err != nil {
		return err
	}
	zap.L().Info("control request acknowledged",
		zap.String("job_id", jobID),
		zap.String("action", string(action)),
	)
	return nil
}

// chunkContacts splits the list into consecutive groups of at most size.
func chunkContacts(list []model.Contact, size int) [][]model.Contact {
	var groups [][]model.Contact
	for len(list) > 0 {
		n := min(size, len(list))
		groups = append(groups, list[:n])
		list = list[n:]
	}
	return groups
}
