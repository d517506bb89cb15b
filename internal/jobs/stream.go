package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
)

// StreamResult is one contact's outcome in the job-less streaming mode.
type StreamResult struct {
	ContactID   string              `json:"contactId"`
	ContactName string              `json:"contactName"`
	Status      model.ContactStatus `json:"status"`
	Research    string              `json:"research,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// Stream enriches the contact list under the same grouped concurrency as a
// batch job but without creating a persistent job: each outcome is handed to
// sink as it arrives, in completion order. sink calls are serialized. A sink
// error stops the stream after the current group drains.
func (o *Orchestrator) Stream(ctx context.Context, list []model.Contact, sink func(StreamResult) error) error {
	if len(list) == 0 {
		return ErrNoContacts
	}

	var mu sync.Mutex
	var sinkErr error
	deliver := func(res StreamResult) {
		mu.Lock()
		defer mu.Unlock()
		if sinkErr != nil {
			return
		}
		if err := sink(res); err != nil {
			sinkErr = err
		}
	}

	groups := chunkContacts(list, o.cfg.Concurrency)
	for i, group := range groups {
		g, gctx := errgroup.WithContext(ctx)
		for _, c := range group {
			g.Go(func() error {
				text, err := o.research(gctx, c)
				if err != nil {
					zap.L().Warn("stream research failed",
						zap.String("contact_id", c.ID),
						zap.Error(err),
					)
					deliver(StreamResult{
						ContactID:   c.ID,
						ContactName: c.Name,
						Status:      model.ContactStatusFailed,
						Error:       err.Error(),
					})
					return nil
				}
				o.persistResearch(gctx, c.ID, text)
				deliver(StreamResult{
					ContactID:   c.ID,
					ContactName: c.Name,
					Status:      model.ContactStatusCompleted,
					Research:    text,
				})
				return nil
			})
		}
		_ = g.Wait()

		mu.Lock()
		stopped := sinkErr != nil
		mu.Unlock()
		if stopped {
			return sinkErr
		}

		if i == len(groups)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.GroupDelay):
		}
	}
	return nil
}
