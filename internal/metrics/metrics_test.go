package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/keeper/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooks_RecordEvents(t *testing.T) {
	m := New()
	h := m.Hooks()
	ctx := context.Background()

	h.OnCheckResolved(ctx, &domain.CheckEvent{Kind: "skill", Tier: "hard"})
	h.OnCheckResolved(ctx, &domain.CheckEvent{Kind: "skill", Tier: "hard"})
	h.OnCheckResolved(ctx, &domain.CheckEvent{Kind: "sanity", Tier: "failure"})
	h.OnDirectiveDropped(ctx, &domain.DirectiveEvent{Kind: "discover_clue", Reason: "missing_clue"})
	h.OnTurnAdvanced(ctx, &domain.TurnEvent{})
	h.OnPhaseChanged(ctx, &domain.PhaseEvent{To: "combat"})
	h.OnGenerate(ctx, &domain.GenerateEvent{Step: "action", Duration: 200 * time.Millisecond})
	h.OnGenerate(ctx, &domain.GenerateEvent{Step: "action", Err: errors.New("boom")})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checks.WithLabelValues("skill", "hard")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checks.WithLabelValues("sanity", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("discover_clue", "missing_clue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.phases.WithLabelValues("combat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("action", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("action", "error")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.Hooks().OnPhaseChanged(context.Background(), &domain.PhaseEvent{To: "investigation"})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `keeper_phase_transitions_total{to="investigation"} 1`)
}

func TestCombine(t *testing.T) {
	var a, b int
	h := Combine(
		domain.LifecycleHooks{OnTurnAdvanced: func(context.Context, *domain.TurnEvent) { a++ }},
		domain.LifecycleHooks{},
		domain.LifecycleHooks{
			OnTurnAdvanced: func(context.Context, *domain.TurnEvent) { b++ },
			OnGenerate:     func(context.Context, *domain.GenerateEvent) { b += 10 },
		},
	)
	h.OnTurnAdvanced(context.Background(), &domain.TurnEvent{})
	h.OnGenerate(context.Background(), &domain.GenerateEvent{})
	assert.Equal(t, 1, a)
	assert.Equal(t, 11, b)
	assert.Nil(t, h.OnPhaseChanged)
}
