// Package progress implements the client side of job progress tracking: a
// WebSocket subscription with transparent fallback to polling the status
// endpoint when the push channel cannot be established or drops early.
package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/jobs"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/relay"
)

const (
	// DefaultOpenTimeout is how long to wait for the push channel's
	// subscribe ack before falling back to polling.
	DefaultOpenTimeout = 5 * time.Second
	// DefaultPollInterval is the pull-endpoint polling cadence.
	DefaultPollInterval = 2 * time.Second
)

// State is the consumer's view of a job, built from whichever channel
// delivers first. Fields are last-write-wins; a terminal status is sticky.
type State struct {
	JobID         string
	Status        model.JobStatus
	SuccessCount  int
	FailureCount  int
	TotalContacts int
	Percent       int
}

// Option configures the consumer.
type Option func(*Consumer)

// WithOpenTimeout overrides the push-channel open timeout.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		c.openTimeout = d
	}
}

// WithPollInterval overrides the polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Consumer) {
		c.pollInterval = d
	}
}

// WithHTTPClient overrides the default http.Client used for polling.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Consumer) {
		c.http = hc
	}
}

// WithEventHandler registers a callback invoked for every push event
// received, for display purposes.
func WithEventHandler(fn func(jobs.Event)) Option {
	return func(c *Consumer) {
		c.onEvent = fn
	}
}

// Consumer tracks one job's progress against a server.
type Consumer struct {
	serverURL    string // e.g. http://localhost:8080
	jobID        string
	openTimeout  time.Duration
	pollInterval time.Duration
	http         *http.Client
	dialer       *websocket.Dialer
	onEvent      func(jobs.Event)

	mu       sync.Mutex
	state    State
	terminal chan struct{}
	termOnce sync.Once
}

// New creates a consumer for the given job.
func New(serverURL, jobID string, opts ...Option) *Consumer {
	c := &Consumer{
		serverURL:    strings.TrimRight(serverURL, "/"),
		jobID:        jobID,
		openTimeout:  DefaultOpenTimeout,
		pollInterval: DefaultPollInterval,
		http:         &http.Client{Timeout: 30 * time.Second},
		dialer:       websocket.DefaultDialer,
		terminal:     make(chan struct{}),
		state:        State{JobID: jobID, Status: model.JobStatusPending},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current view of the job.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run blocks until the job reaches a terminal status or ctx ends. It opens
// the push channel first; if no ack arrives within the open timeout, or the
// channel drops before the job completes, it polls the status endpoint until
// it observes a terminal status. A late push success cancels polling.
func (c *Consumer) Run(ctx context.Context) (State, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ack := make(chan struct{}, 1)
	pushDone := make(chan error, 1)
	go func() {
		pushDone <- c.runPush(ctx, ack)
	}()

	var pollCancel context.CancelFunc
	startPolling := func() {
		if pollCancel != nil {
			return
		}
		var pollCtx context.Context
		pollCtx, pollCancel = context.WithCancel(ctx)
		go c.runPoll(pollCtx)
	}
	stopPolling := func() {
		if pollCancel != nil {
			pollCancel()
			pollCancel = nil
		}
	}
	defer stopPolling()

	openTimer := time.NewTimer(c.openTimeout)
	defer openTimer.Stop()

	acked := false
	for {
		select {
		case <-ack:
			acked = true
			stopPolling()
		case <-openTimer.C:
			if !acked {
				zap.L().Info("push channel not open in time, polling instead",
					zap.String("job_id", c.jobID),
				)
				startPolling()
			}
		case err := <-pushDone:
			pushDone = nil
			if c.isTerminal() {
				continue
			}
			if err != nil {
				zap.L().Warn("push channel dropped, polling instead",
					zap.String("job_id", c.jobID),
					zap.Error(err),
				)
			}
			startPolling()
		case <-c.terminal:
			return c.State(), nil
		case <-ctx.Done():
			return c.State(), eris.Wrap(ctx.Err(), "progress: consumer interrupted")
		}
	}
}

func (c *Consumer) isTerminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status.Terminal()
}

// runPush dials the WebSocket endpoint, subscribes to the job, and applies
// events until the job completes or the connection drops.
func (c *Consumer) runPush(ctx context.Context, ack chan<- struct{}) error {
	wsURL, err := websocketURL(c.serverURL)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.openTimeout)
	defer cancel()
	ws, _, err := c.dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		return eris.Wrap(err, "progress: dial push channel")
	}
	defer ws.Close()

	// Close the socket when ctx ends so ReadJSON unblocks.
	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()

	if err := ws.WriteJSON(relay.ControlMessage{Type: "subscribe", JobID: c.jobID}); err != nil {
		return eris.Wrap(err, "progress: send subscribe")
	}

	for {
		var ev jobs.Event
		if err := ws.ReadJSON(&ev); err != nil {
			if c.isTerminal() || ctx.Err() != nil {
				return nil
			}
			return eris.Wrap(err, "progress: read push channel")
		}

		if ev.Kind == jobs.EventSubscribed {
			select {
			case ack <- struct{}{}:
			default:
			}
		}

		if c.onEvent != nil {
			c.onEvent(ev)
		}
		c.applyEvent(ev)
		if ev.Kind == jobs.EventJobComplete {
			return nil
		}
	}
}

// runPoll hits the status endpoint on a fixed interval until the job is
// terminal or ctx ends.
func (c *Consumer) runPoll(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		snap, err := c.fetchSnapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.L().Warn("status poll failed", zap.String("job_id", c.jobID), zap.Error(err))
		} else {
			c.applySnapshot(snap)
			if snap.Status.Terminal() {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Consumer) fetchSnapshot(ctx context.Context) (model.JobSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/research/batch/"+url.PathEscape(c.jobID), nil)
	if err != nil {
		return model.JobSnapshot{}, eris.Wrap(err, "progress: create status request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return model.JobSnapshot{}, eris.Wrap(err, "progress: fetch status")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.JobSnapshot{}, eris.Errorf("progress: status endpoint returned %d", resp.StatusCode)
	}

	var snap model.JobSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return model.JobSnapshot{}, eris.Wrap(err, "progress: decode status")
	}
	return snap, nil
}

// applyEvent folds a push event into the state. Receiving both channels
// concurrently must not double-count: every update overwrites whole fields
// and a terminal status is never downgraded.
func (c *Consumer) applyEvent(ev jobs.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case jobs.EventProgress:
		if ev.Progress == nil {
			return
		}
		c.state.SuccessCount = ev.Progress.Completed
		c.state.FailureCount = ev.Progress.Failed
		c.state.TotalContacts = ev.Progress.Total
		c.state.Percent = ev.Progress.PercentComplete
		if !c.state.Status.Terminal() {
			c.state.Status = model.JobStatusProcessing
		}
	case jobs.EventJobComplete:
		if ev.Summary == nil {
			return
		}
		c.state.SuccessCount = ev.Summary.SuccessCount
		c.state.FailureCount = ev.Summary.FailureCount
		c.state.TotalContacts = ev.Summary.TotalContacts
		c.state.Percent = 100
		if !c.state.Status.Terminal() {
			c.state.Status = ev.Summary.Status
		}
		c.markTerminal()
	}
}

func (c *Consumer) applySnapshot(snap model.JobSnapshot) {
	c.mu.Lock()
	c.state.SuccessCount = snap.SuccessCount
	c.state.FailureCount = snap.FailureCount
	c.state.TotalContacts = snap.TotalContacts
	c.state.Percent = snap.PercentComplete()
	if !c.state.Status.Terminal() {
		c.state.Status = snap.Status
	}
	terminal := c.state.Status.Terminal()
	c.mu.Unlock()

	if terminal {
		c.markTerminal()
	}
}

func (c *Consumer) markTerminal() {
	c.termOnce.Do(func() {
		close(c.terminal)
	})
}

// websocketURL converts the server base URL to its ws endpoint.
func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", eris.Wrap(err, "progress: parse server url")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", eris.Errorf("progress: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/research/ws"
	return u.String(), nil
}
