// Package relay bridges the orchestrator's event stream to WebSocket
// subscribers. Clients send subscribe/unsubscribe control messages for
// individual job ids and receive that job's lifecycle events as JSON frames.
package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/jobs"
	"github.com/sells-group/outreach-cli/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// outboundBuffer bounds the per-connection send queue across all of the
	// connection's subscriptions.
	outboundBuffer = 256
)

// ControlMessage is the client-to-server frame on the push channel.
type ControlMessage struct {
	Type  string `json:"type"` // "subscribe" or "unsubscribe"
	JobID string `json:"jobId"`
}

// Relay upgrades HTTP requests to WebSocket connections and forwards job
// events to subscribers.
type Relay struct {
	store    *jobs.Store
	emitter  *jobs.Emitter
	upgrader websocket.Upgrader
}

// New creates a relay over the given job store and emitter.
func New(store *jobs.Store, emitter *jobs.Emitter) *Relay {
	return &Relay{
		store:   store,
		emitter: emitter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the router's CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs its read/write loops until the
// client disconnects.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &conn{
		relay: r,
		ws:    ws,
		out:   make(chan jobs.Event, outboundBuffer),
		subs:  make(map[string]func()),
		done:  make(chan struct{}),
	}
	go c.writeLoop()
	c.readLoop()
}

// conn is one client connection with its active subscriptions.
type conn struct {
	relay *Relay
	ws    *websocket.Conn
	out   chan jobs.Event

	mu   sync.Mutex
	subs map[string]func() // job id -> subscription cancel

	closeOnce sync.Once
	done      chan struct{}
}

func (c *conn) readLoop() {
	defer c.close()
	c.ws.SetReadLimit(4096)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ControlMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.L().Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		switch msg.Type {
		case "subscribe":
			c.subscribe(msg.JobID)
		case "unsubscribe":
			c.unsubscribe(msg.JobID)
		default:
			zap.L().Warn("unknown control message", zap.String("type", msg.Type))
		}
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case ev, ok := <-c.out:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// subscribe attaches this connection to a job's event stream. The client gets
// a SUBSCRIBED ack immediately; if the job is already terminal, a
// JOB_COMPLETE built from the snapshot follows so late subscribers are not
// left waiting for events that already fired.
func (c *conn) subscribe(jobID string) {
	if jobID == "" {
		return
	}

	c.mu.Lock()
	if _, exists := c.subs[jobID]; exists {
		c.mu.Unlock()
		return
	}
	ch, cancel := c.relay.emitter.Subscribe(jobID)
	c.subs[jobID] = cancel
	c.mu.Unlock()

	c.send(jobs.Event{Kind: jobs.EventSubscribed, JobID: jobID})

	if snap, err := c.relay.store.Snapshot(jobID); err == nil && snap.Status.Terminal() {
		c.send(completeEvent(snap))
	}

	go func() {
		for ev := range ch {
			c.send(ev)
		}
	}()
}

func (c *conn) unsubscribe(jobID string) {
	c.mu.Lock()
	cancel, ok := c.subs[jobID]
	if ok {
		delete(c.subs, jobID)
	}
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// send queues an event for the write loop, dropping it if the client is too
// slow to drain its buffer.
func (c *conn) send(ev jobs.Event) {
	select {
	case c.out <- ev:
	case <-c.done:
	default:
		zap.L().Warn("dropping event for slow websocket client",
			zap.String("job_id", ev.JobID),
			zap.String("kind", string(ev.Kind)),
		)
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		for id, cancel := range c.subs {
			delete(c.subs, id)
			cancel()
		}
		c.mu.Unlock()
		_ = c.ws.Close()
	})
}

func completeEvent(snap model.JobSnapshot) jobs.Event {
	return jobs.Event{
		Kind:  jobs.EventJobComplete,
		JobID: snap.JobID,
		Summary: &jobs.Summary{
			Status:        snap.Status,
			SuccessCount:  snap.SuccessCount,
			FailureCount:  snap.FailureCount,
			TotalContacts: snap.TotalContacts,
		},
	}
}
