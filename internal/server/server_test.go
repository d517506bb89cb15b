package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/jobs"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/research"
)

// stubClient fails contacts whose name carries a "fail" marker.
type stubClient struct{}

func (stubClient) Research(ctx context.Context, req research.Request) (string, error) {
	if req.Company == "fail" {
		return "", eris.New("provider exploded")
	}
	return "brief for " + req.PersonName, nil
}

func newTestServer(t *testing.T) (*Server, *jobs.Orchestrator) {
	t.Helper()
	orch := jobs.NewOrchestrator(
		jobs.NewStore(),
		stubClient{},
		nil,
		jobs.NewEmitter(),
		jobs.SchedulerConfig{Concurrency: 2, GroupDelay: -1},
	)
	return New(context.Background(), orch, []string{"*"}), orch
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func waitTerminal(t *testing.T, orch *jobs.Orchestrator, jobID string) model.JobSnapshot {
	t.Helper()
	var snap model.JobSnapshot
	require.Eventually(t, func() bool {
		s, err := orch.Store().Snapshot(jobID)
		if err != nil {
			return false
		}
		snap = s
		return s.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func TestSubmitBatch(t *testing.T) {
	s, orch := newTestServer(t)

	w := postJSON(t, s.Handler(), "/api/research/batch", map[string]any{
		"contacts": []model.Contact{
			{ID: "a", Name: "Ada"},
			{ID: "b", Name: "Bob"},
		},
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		JobID        string `json:"jobId"`
		ContactCount int    `json:"contactCount"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, 2, resp.ContactCount)

	final := waitTerminal(t, orch, resp.JobID)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
}

func TestSubmitBatchValidation(t *testing.T) {
	s, _ := newTestServer(t)

	w := postJSON(t, s.Handler(), "/api/research/batch", map[string]any{"contacts": []model.Contact{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, s.Handler(), "/api/research/batch", map[string]any{
		"contacts": []model.Contact{{ID: "", Name: "No ID"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "id and a name")

	req := httptest.NewRequest(http.MethodPost, "/api/research/batch", bytes.NewBufferString("{not json"))
	w2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w2, req)
	assert.Equal(t, http.StatusBadRequest, w2.Code)
}

func TestStatusEndpoint(t *testing.T) {
	s, orch := newTestServer(t)

	snap, err := orch.Submit(context.Background(), []model.Contact{{ID: "a", Name: "Ada"}})
	require.NoError(t, err)
	waitTerminal(t, orch, snap.JobID)

	w := get(s.Handler(), "/api/research/batch/"+snap.JobID)
	require.Equal(t, http.StatusOK, w.Code)

	var got model.JobSnapshot
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, snap.JobID, got.JobID)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, 1, got.SuccessCount)
}

func TestStatusNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	w := get(s.Handler(), "/api/research/batch/no-such-job")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetryEndpoint(t *testing.T) {
	s, orch := newTestServer(t)

	snap, err := orch.Submit(context.Background(), []model.Contact{
		{ID: "a", Name: "Ada", Company: "fail"},
		{ID: "b", Name: "Bob"},
	})
	require.NoError(t, err)
	waitTerminal(t, orch, snap.JobID)

	// A completed contact is not retryable.
	w := postJSON(t, s.Handler(), "/api/research/batch/"+snap.JobID+"/contacts/b/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Unknown contact and job.
	w = postJSON(t, s.Handler(), "/api/research/batch/"+snap.JobID+"/contacts/zz/retry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = postJSON(t, s.Handler(), "/api/research/batch/no-such-job/contacts/a/retry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestControlEndpoints(t *testing.T) {
	s, orch := newTestServer(t)

	snap, err := orch.Submit(context.Background(), []model.Contact{{ID: "a", Name: "Ada"}})
	require.NoError(t, err)

	for _, action := range []string{"pause", "resume", "cancel"} {
		w := postJSON(t, s.Handler(), "/api/research/batch/"+snap.JobID+"/"+action, nil)
		require.Equal(t, http.StatusOK, w.Code, action)
		assert.Contains(t, w.Body.String(), "acknowledged")
	}

	got, err := orch.Store().Snapshot(snap.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.ControlCancel, got.LastControl)

	w := postJSON(t, s.Handler(), "/api/research/batch/no-such-job/pause", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := postJSON(t, s.Handler(), "/api/research/stream", map[string]any{
		"contacts": []model.Contact{
			{ID: "a", Name: "Ada"},
			{ID: "b", Name: "Bob", Company: "fail"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	var results []jobs.StreamResult
	scanner := bufio.NewScanner(w.Body)
	for scanner.Scan() {
		var res jobs.StreamResult
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &res))
		results = append(results, res)
	}
	require.Len(t, results, 2)

	byID := map[string]jobs.StreamResult{}
	for _, r := range results {
		byID[r.ContactID] = r
	}
	assert.Equal(t, model.ContactStatusCompleted, byID["a"].Status)
	assert.Equal(t, model.ContactStatusFailed, byID["b"].Status)
}

func TestPruneEndpoint(t *testing.T) {
	s, orch := newTestServer(t)

	snap, err := orch.Submit(context.Background(), []model.Contact{{ID: "a", Name: "Ada"}})
	require.NoError(t, err)
	waitTerminal(t, orch, snap.JobID)

	w := postJSON(t, s.Handler(), "/api/research/prune", map[string]int{"maxAgeSecs": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Nothing is old enough yet.
	w = postJSON(t, s.Handler(), "/api/research/prune", map[string]int{"maxAgeSecs": 3600})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":0`)
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := get(s.Handler(), "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
