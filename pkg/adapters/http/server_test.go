package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/keeper"
	"github.com/aretw0/keeper/internal/metrics"
	"github.com/aretw0/keeper/pkg/adapters/memory"
	"github.com/aretw0/keeper/pkg/adapters/scripted"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/phase"
	"github.com/aretw0/keeper/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	m := metrics.New()
	eng := keeper.New(scripted.New(nil), keeper.WithLifecycleHooks(m.Hooks()))
	srv := NewServer(session.NewManager(memory.NewStore(), eng), WithMetrics(m.Handler()), WithVersion("test"))
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func characters() []*domain.Actor {
	return []*domain.Actor{
		{ID: "alice", Name: "Alice", Characteristics: domain.Characteristics{DEX: 50},
			Resources: map[string]domain.Resource{domain.ResourceSanity: {Current: 60, Max: 99}},
			Skills:    map[string]int{"Spot Hidden": 65}},
		{ID: "bob", Name: "Bob", Characteristics: domain.Characteristics{DEX: 80},
			Resources: map[string]domain.Resource{domain.ResourceSanity: {Current: 45, Max: 99}}},
	}
}

func createStarted(t *testing.T, h http.Handler) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/sessions", CreateRequest{
		SessionID: "s1", ScenarioID: "haunting", Characters: characters(), Start: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[CreateResponse](t, rec)
	assert.Contains(t, resp.Opening, "Corbitt house")
	assert.Equal(t, phase.Intro, resp.Session.Phase)

	rec = do(t, h, http.MethodPost, "/sessions/s1/phase", PhaseRequest{Phase: "exploration"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "ok", "version": "test"}, decodeBody[map[string]string](t, rec))
}

func TestSessionLifecycle(t *testing.T) {
	_, h := newTestServer(t)
	createStarted(t, h)

	rec := do(t, h, http.MethodGet, "/sessions/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s1"}, decodeBody[map[string][]string](t, rec)["sessions"])

	rec = do(t, h, http.MethodGet, "/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[domain.Snapshot](t, rec)
	assert.Equal(t, phase.Exploration, snap.Phase)
	assert.Len(t, snap.Actors, 2)

	rec = do(t, h, http.MethodPost, "/sessions", CreateRequest{SessionID: "s1", ScenarioID: "haunting", Characters: characters()})
	assert.Equal(t, http.StatusConflict, rec.Code, "duplicate id")

	rec = do(t, h, http.MethodDelete, "/sessions/s1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/sessions/s1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodDelete, "/sessions/s1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreate_Validation(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/sessions", CreateRequest{ScenarioID: "haunting"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad := characters()
	bad[0].Resources[domain.ResourceSanity] = domain.Resource{Current: 120, Max: 99}
	rec = do(t, h, http.MethodPost, "/sessions", CreateRequest{ScenarioID: "haunting", Characters: bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("{not json"))
	raw := httptest.NewRecorder()
	h.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestAction_ChecksAndContinuation(t *testing.T) {
	_, h := newTestServer(t)
	createStarted(t, h)

	seed := int64(7)
	rec := do(t, h, http.MethodPost, "/sessions/s1/actions", keeper.ActionRequest{ActorID: "alice", Input: "I search the desk", Seed: &seed})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeBody[keeper.ActionResult](t, rec)
	assert.Contains(t, res.Narrative, "diary")
	assert.Equal(t, int64(7), res.Seed)
	assert.Equal(t, "tense", res.Atmosphere)
	require.Len(t, res.Directives, 1)
	require.NotNil(t, res.Continuation)
	assert.Contains(t, *res.Continuation, "holds its breath")
	assert.Empty(t, res.Error)

	rec = do(t, h, http.MethodGet, "/sessions/s1", nil)
	snap := decodeBody[domain.Snapshot](t, rec)
	assert.Len(t, snap.History, 5, "opening plus two exchanges")
}

func TestAction_Errors(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/sessions/missing/actions", keeper.ActionRequest{ActorID: "alice", Input: "hello"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	createStarted(t, h)

	rec = do(t, h, http.MethodPost, "/sessions/s1/actions", keeper.ActionRequest{Input: "hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing character_id")

	rec = do(t, h, http.MethodPost, "/sessions/s1/actions", keeper.ActionRequest{ActorID: "carol", Input: "hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown character")

	rec = do(t, h, http.MethodPost, "/sessions/s1/actions", keeper.ActionRequest{ActorID: "alice", Input: " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty input")

	rec = do(t, h, http.MethodPost, "/sessions/s1/push", PushRequest{ActorID: "alice"})
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing to push")
}

func TestAction_NotYourTurn(t *testing.T) {
	_, h := newTestServer(t)
	createStarted(t, h)

	rec := do(t, h, http.MethodPost, "/sessions/s1/phase", PhaseRequest{Phase: "combat"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decodeBody[domain.Snapshot](t, rec)
	require.NotNil(t, snap.Turn)
	assert.Equal(t, []string{"bob", "alice"}, snap.Turn.Queue)

	rec = do(t, h, http.MethodPost, "/sessions/s1/actions", keeper.ActionRequest{ActorID: "alice", Input: "I shoot"})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[keeper.ActionResult](t, rec)
	assert.Equal(t, "not_your_turn", res.Error)
	assert.Equal(t, phase.Combat, res.Phase)

	rec = do(t, h, http.MethodGet, "/sessions/s1", nil)
	after := decodeBody[domain.Snapshot](t, rec)
	assert.Equal(t, snap.Version, after.Version, "untouched")
}

func TestPhase_Errors(t *testing.T) {
	_, h := newTestServer(t)
	createStarted(t, h)

	rec := do(t, h, http.MethodPost, "/sessions/s1/phase", PhaseRequest{Phase: "lobby"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/sessions/s1/phase", PhaseRequest{Phase: "dance"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t)
	createStarted(t, h)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `keeper_phase_transitions_total{to="exploration"} 1`)
	assert.Contains(t, rec.Body.String(), `keeper_generations_total{outcome="ok",step="opening"} 1`)
}

func TestEvents_StreamsActionResults(t *testing.T) {
	srv, h := newTestServer(t)
	createStarted(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions/s1/events", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(sub, req)
	}()

	require.Eventually(t, func() bool { return srv.Streams().Subscribers("s1") == 1 }, time.Second, 10*time.Millisecond)

	rec := do(t, h, http.MethodPost, "/sessions/s1/actions", keeper.ActionRequest{ActorID: "alice", Input: "I wait"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Give the handler a moment to drain the channel.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	out := sub.Body.String()
	assert.Contains(t, out, "event: ping")
	assert.Contains(t, out, "event: snapshot")
	assert.Contains(t, out, `"session_id":"s1"`)
	assert.Contains(t, out, "Floorboards creak")
	assert.Equal(t, 0, srv.Streams().Subscribers("s1"))
}

func TestEvents_UnknownSession(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/sessions/nope/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: s1", session.ErrSessionBusy), http.StatusConflict},
		{&phase.IllegalTransitionError{From: phase.Lobby, To: phase.Combat}, http.StatusConflict},
		{domain.ErrInactivePhase, http.StatusConflict},
		{session.ErrInputTooLarge, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestStreamManager(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("s1")
	sm.Broadcast("s1", "hello")
	sm.Broadcast("other", "ignored")
	assert.Equal(t, "hello", <-ch)

	for i := 0; i < 20; i++ {
		sm.Broadcast("s1", "flood")
	}
	assert.Len(t, ch, 10, "slow subscriber keeps only the buffer")

	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("s1"))
}
