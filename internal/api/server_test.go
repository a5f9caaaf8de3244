package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfishy/nexus-cli/internal/environment"
	"github.com/wolfishy/nexus-cli/internal/events"
	"github.com/wolfishy/nexus-cli/internal/log"
	"github.com/wolfishy/nexus-cli/internal/prover"
	"github.com/wolfishy/nexus-cli/internal/report"
	"github.com/wolfishy/nexus-cli/internal/task"
)

type rawProof []byte

func (p rawProof) MarshalBinary() ([]byte, error) { return p, nil }

type fakeProver struct {
	gotTask    *task.Task
	gotEnv     environment.Environment
	gotClient  string
	gotWorkers int
	err        error
}

func (f *fakeProver) ProveTask(_ context.Context, t *task.Task, env environment.Environment, clientID string, workers int) (*prover.Result, error) {
	f.gotTask, f.gotEnv, f.gotClient, f.gotWorkers = t, env, clientID, workers
	if f.err != nil {
		return nil, f.err
	}
	return &prover.Result{
		Proofs:      []prover.Artifact{rawProof{0xab}, rawProof{0xcd}},
		ProofHashes: []string{"h0", "h1"},
		TaskHash:    "combined",
	}, nil
}

type fakeReports struct {
	entries  []report.Entry
	gotLimit int
	err      error
}

func (f *fakeReports) List(_ context.Context, limit int) ([]report.Entry, error) {
	f.gotLimit = limit
	return f.entries, f.err
}

func newTestServer(t *testing.T, cfg Config, p TaskProver, reports ReportLister, hub *events.Hub) *Server {
	t.Helper()
	if cfg.Environment == "" {
		cfg.Environment = environment.Beta
	}
	s, err := New(cfg, p, reports, hub, log.Get())
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, path, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, Config{APIKey: "secret", Programs: []string{"fib_input_initial"}}, &fakeProver{}, nil, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "beta", resp.Environment)
	assert.Equal(t, []string{"fib_input_initial"}, resp.Programs)
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, Config{APIKey: "secret"}, &fakeProver{}, &fakeReports{}, nil)
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/v1/reports", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/v1/reports", "", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/reports", "", "secret").Code)

	open := newTestServer(t, Config{}, &fakeProver{}, &fakeReports{}, nil)
	assert.Equal(t, http.StatusOK, do(t, open.Handler(), http.MethodGet, "/v1/reports", "", "").Code)
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "", wantErr: true},
		{header: "Basic abc", wantErr: true},
		{header: "Bearer    ", wantErr: true},
		{header: "Bearer abc", want: "abc"},
		{header: "Bearer  abc ", want: "abc"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, err := ExtractAPIKey(req)
		if tt.wantErr {
			assert.Error(t, err, tt.header)
			continue
		}
		assert.NoError(t, err, tt.header)
		assert.Equal(t, tt.want, got)
	}

	assert.False(t, ValidateAPIKey("a", ""))
	assert.False(t, ValidateAPIKey("", "a"))
	assert.False(t, ValidateAPIKey("ab", "a"))
	assert.True(t, ValidateAPIKey("a", "a"))
}

func TestSubmitTaskAndFetchResult(t *testing.T) {
	fp := &fakeProver{}
	s := newTestServer(t, Config{ClientID: "client-1", Workers: 4}, fp, nil, nil)
	h := s.Handler()

	body := `{"id":"task-1","program_id":"fib_input_initial","type":"proof_hash","inputs":["0x0a00000001000000", "ff"],"workers":2}`
	rec := do(t, h, http.MethodPost, "/v1/tasks", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, "proof_hash", resp.TaskType)
	assert.Equal(t, "combined", resp.TaskHash)
	assert.Equal(t, []string{"h0", "h1"}, resp.ProofHashes)
	assert.Equal(t, []string{"ab", "cd"}, resp.Proofs)

	require.NotNil(t, fp.gotTask)
	assert.Equal(t, [][]byte{{0x0a, 0, 0, 0, 1, 0, 0, 0}, {0xff}}, fp.gotTask.Inputs)
	assert.Equal(t, task.TypeProofHash, fp.gotTask.Type)
	assert.Equal(t, environment.Beta, fp.gotEnv)
	assert.Equal(t, "client-1", fp.gotClient)
	assert.Equal(t, 2, fp.gotWorkers)

	rec = do(t, h, http.MethodGet, "/v1/tasks/task-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cached TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cached))
	assert.Equal(t, resp.TaskHash, cached.TaskHash)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/tasks/unknown", "", "").Code)
}

func TestSubmitTaskDefaults(t *testing.T) {
	fp := &fakeProver{}
	s := newTestServer(t, Config{Workers: 3}, fp, nil, nil)

	rec := do(t, s.Handler(), http.MethodPost, "/v1/tasks", `{"program_id":"fib_input_initial","inputs":["00"]}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, fp.gotTask.ID)
	assert.Equal(t, task.TypeIndividual, fp.gotTask.Type)
	assert.Equal(t, 3, fp.gotWorkers)
}

func TestSubmitTaskErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		proveErr error
		status   int
		kind     string
	}{
		{name: "bad json", body: `{`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"program":"x"}`, status: http.StatusBadRequest},
		{name: "bad hex", body: `{"program_id":"p","inputs":["zz"]}`, status: http.StatusBadRequest},
		{name: "negative workers", body: `{"program_id":"p","inputs":["00"],"workers":-1}`, status: http.StatusBadRequest},
		{name: "no inputs", body: `{"program_id":"p","inputs":[]}`, status: http.StatusBadRequest},
		{name: "missing program", body: `{"inputs":["00"]}`, status: http.StatusBadRequest},
		{
			name: "malformed task", body: `{"program_id":"nope","inputs":["00"]}`,
			proveErr: prover.NewError(prover.KindMalformedTask, "unsupported program ID: nope"),
			status:   http.StatusBadRequest, kind: "malformed_task",
		},
		{
			name: "guest failure", body: `{"program_id":"p","inputs":["00"]}`,
			proveErr: prover.NewError(prover.KindGuestProgram, "overflow"),
			status:   http.StatusUnprocessableEntity, kind: "guest_program",
		},
		{
			name: "other failure", body: `{"program_id":"p","inputs":["00"]}`,
			proveErr: errors.New("engine crashed"),
			status:   http.StatusInternalServerError, kind: "other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := &fakeProver{err: tt.proveErr}
			s := newTestServer(t, Config{Workers: 1}, fp, nil, nil)
			rec := do(t, s.Handler(), http.MethodPost, "/v1/tasks", tt.body, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.proveErr == nil {
				assert.Nil(t, fp.gotTask, "rejected before proving")
			}

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.kind, resp.Kind)
		})
	}
}

func TestListReports(t *testing.T) {
	fr := &fakeReports{entries: []report.Entry{{ID: "r1", TaskID: "t1", InputIndex: 2}}}
	s := newTestServer(t, Config{}, &fakeProver{}, fr, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/v1/reports", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultReportLimit, fr.gotLimit)
	var resp ReportsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Reports, 1)
	assert.Equal(t, "r1", resp.Reports[0].ID)

	do(t, h, http.MethodGet, "/v1/reports?limit=5000", "", "")
	assert.Equal(t, maxReportLimit, fr.gotLimit)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/reports?limit=0", "", "").Code)

	fr.err = errors.New("db locked")
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/v1/reports", "", "").Code)

	disabled := newTestServer(t, Config{}, &fakeProver{}, nil, nil)
	assert.Equal(t, http.StatusNotFound, do(t, disabled.Handler(), http.MethodGet, "/v1/reports", "", "").Code)
}

func TestEventSnapshot(t *testing.T) {
	hub := events.NewHub(10)
	hub.Publish("task.started", map[string]any{"task_id": "a"})
	second := hub.Publish("task.proved", map[string]any{"task_id": "a"})

	s := newTestServer(t, Config{}, &fakeProver{}, nil, hub)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/v1/events", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 2)

	rec = do(t, h, http.MethodGet, "/v1/events?since=1", "", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, second.ID, resp.Events[0].ID)

	rec = do(t, h, http.MethodGet, "/v1/events?type=task.started", "", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "task.started", resp.Events[0].Type)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/events?since=x", "", "").Code)
}

func TestEventStream(t *testing.T) {
	hub := events.NewHub(10)
	hub.Publish("task.started", map[string]any{"task_id": "a"})

	s := newTestServer(t, Config{}, &fakeProver{}, nil, hub)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				t.Fatalf("read stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			if line == "" {
				return strings.Join(lines, "\n")
			}
			lines = append(lines, line)
		}
	}

	first := readEvent()
	assert.Contains(t, first, "event: task.started")
	assert.Contains(t, first, "id: 1")

	hub.Publish(report.EventVerificationFailed, map[string]any{"task_id": "a"})
	live := readEvent()
	assert.Contains(t, live, "event: "+report.EventVerificationFailed)
	assert.Contains(t, live, "id: 2")
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("-3"))
	assert.Equal(t, int64(0), parseLastEventID("abc"))
	assert.Equal(t, int64(42), parseLastEventID("42"))
}

// blockingProver proves until its context is cancelled.
type blockingProver struct {
	started  chan struct{}
	finished atomic.Bool
}

func (b *blockingProver) ProveTask(ctx context.Context, _ *task.Task, _ environment.Environment, _ string, _ int) (*prover.Result, error) {
	close(b.started)
	<-ctx.Done()
	b.finished.Store(true)
	return nil, prover.WrapError(prover.KindOther, "prover interrupted", ctx.Err())
}

func TestServeShutdownDrainsInFlightProofs(t *testing.T) {
	bp := &blockingProver{started: make(chan struct{})}
	s := newTestServer(t, Config{Workers: 1}, bp, nil, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()

	status := make(chan int, 1)
	go func() {
		resp, err := http.Post("http://"+ln.Addr().String()+"/v1/tasks", "application/json",
			strings.NewReader(`{"program_id":"fib_input_initial","inputs":["00"]}`))
		if err != nil {
			status <- 0
			return
		}
		resp.Body.Close()
		status <- resp.StatusCode
	}()

	select {
	case <-bp.started:
	case <-time.After(5 * time.Second):
		t.Fatal("prove never started")
	}
	cancel()

	select {
	case err := <-served:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}
	assert.True(t, bp.finished.Load(), "in-flight proof finished before Serve returned")

	select {
	case code := <-status:
		assert.Equal(t, http.StatusInternalServerError, code)
	case <-time.After(5 * time.Second):
		t.Fatal("client got no response")
	}
}
