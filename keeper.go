package keeper

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/keeper/internal/logging"
	"github.com/aretw0/keeper/internal/runtime"
	"github.com/aretw0/keeper/pkg/directive"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/phase"
	"github.com/aretw0/keeper/pkg/ports"
	"github.com/aretw0/keeper/pkg/scenario"
	"github.com/aretw0/keeper/pkg/turn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/aretw0/keeper"

// DefaultHistoryWindow is the number of history messages sent to the
// generator with each request.
const DefaultHistoryWindow = 20

// ActionRequest is one player action.
type ActionRequest struct {
	ActorID string `json:"character_id"`
	Input   string `json:"input"`
	// Seed makes the checks of this action reproducible. A random seed is
	// drawn when nil and reported back in the result.
	Seed *int64 `json:"seed,omitempty"`
}

// ActionResult is what the caller sees after an action.
type ActionResult struct {
	Narrative       string                 `json:"narrative"`
	Directives      []runtime.CheckOutcome `json:"directives"`
	Continuation    *string                `json:"continuation"`
	CluesDiscovered []runtime.Clue         `json:"clues_discovered"`
	Phase           phase.Phase            `json:"phase"`
	Atmosphere      string                 `json:"atmosphere"`
	NPCActions      []directive.NPCAction  `json:"npc_actions"`
	TurnState       turn.State             `json:"turn_state"`
	Error           string                 `json:"error,omitempty"`
	Seed            int64                  `json:"seed"`
	Dropped         []runtime.Dropped      `json:"dropped,omitempty"`
	Summary         string                 `json:"summary,omitempty"`
	Ending          string                 `json:"ending,omitempty"`
}

// NotYourTurn builds the result returned to a player who tried to act out of
// turn. Nothing was mutated.
func NotYourTurn(s *domain.Snapshot) *ActionResult {
	res := &ActionResult{
		Directives:      []runtime.CheckOutcome{},
		CluesDiscovered: []runtime.Clue{},
		NPCActions:      []directive.NPCAction{},
		Phase:           s.Phase,
		Error:           domain.ErrNotYourTurn.Error(),
	}
	if s.Turn != nil {
		res.TurnState = s.Turn.Clone()
	}
	return res
}

// Engine runs the two-step action protocol: the action round-trip with
// directive execution, then the optional continuation round-trip that folds
// the check outcomes back into the story. It holds no session state and is
// safe for concurrent use.
type Engine struct {
	generator     ports.Generator
	guardian      *scenario.Guardian
	executor      *runtime.Executor
	hooks         domain.LifecycleHooks
	logger        *slog.Logger
	tracer        trace.Tracer
	historyWindow int
	seeds         func() int64
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithGuardian attaches the scenario. It validates clue ids, tracks plot
// progress and decides the ending.
func WithGuardian(g *scenario.Guardian) Option {
	return func(e *Engine) {
		e.guardian = g
	}
}

// WithHistoryWindow bounds the history sent to the generator.
func WithHistoryWindow(n int) Option {
	return func(e *Engine) {
		e.historyWindow = n
	}
}

// WithSeedSource replaces the random seed source used when an action carries
// no seed.
func WithSeedSource(fn func() int64) Option {
	return func(e *Engine) {
		e.seeds = fn
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// New creates an Engine backed by the given narrative generator.
func New(gen ports.Generator, opts ...Option) *Engine {
	e := &Engine{
		generator:     gen,
		historyWindow: DefaultHistoryWindow,
		seeds:         randomSeed,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentationName)
	}

	execOpts := []runtime.Option{
		runtime.WithLogger(e.logger),
		runtime.WithLifecycleHooks(e.hooks),
	}
	if e.guardian != nil {
		execOpts = append(execOpts, runtime.WithProgress(e.guardian))
	}
	e.executor = runtime.NewExecutor(execOpts...)
	return e
}

// Guardian returns the attached scenario guardian, if any.
func (e *Engine) Guardian() *scenario.Guardian {
	return e.guardian
}

// Act runs step one: it checks that the actor may act, asks the generator
// for a reply, and executes the reply's directives on a copy of snap.
// Nothing is mutated when the generator fails. An actor acting out of turn
// gets domain.ErrNotYourTurn before any generator call.
func (e *Engine) Act(ctx context.Context, snap *domain.Snapshot, req ActionRequest) (*ActionResult, *domain.Snapshot, error) {
	ctx, span := e.tracer.Start(ctx, "keeper.act", trace.WithAttributes(
		attribute.String("session.id", snap.SessionID),
		attribute.String("actor.id", req.ActorID),
	))
	defer span.End()

	if err := e.precheck(snap, req.ActorID); err != nil {
		recordSpanError(span, err)
		return nil, nil, err
	}

	seed := e.seed(req.Seed)
	span.SetAttributes(attribute.Int64("seed", seed))

	gen, err := e.generate(ctx, snap, ports.StepAction, req.Input)
	if err != nil {
		recordSpanError(span, err)
		return nil, nil, err
	}
	resp := directive.ParseResponse(gen.Text)

	res, err := e.execute(ctx, snap, req.ActorID, resp.Directives, seed)
	if err != nil {
		recordSpanError(span, err)
		return nil, nil, err
	}

	next := res.Snapshot
	next.AppendHistory(domain.RoleUser, req.Input)
	next.AppendHistory(domain.RoleAssistant, gen.Text)
	next.Usage = next.Usage.Add(gen.Usage)

	out := &ActionResult{
		Narrative:       resp.Narrative,
		Directives:      nonNil(res.Checks),
		CluesDiscovered: nonNil(res.Clues),
		Phase:           next.Phase,
		Atmosphere:      resp.Atmosphere,
		NPCActions:      nonNil(resp.NPCActions),
		TurnState:       next.Turn.Clone(),
		Seed:            seed,
		Dropped:         res.Dropped,
		Summary:         res.Summary,
		Ending:          res.Ending,
	}
	e.logger.InfoContext(ctx, "action resolved",
		"session_id", snap.SessionID,
		"actor_id", req.ActorID,
		"checks", len(res.Checks),
		"dropped", len(res.Dropped),
		"phase", next.Phase,
	)
	return out, next, nil
}

// Continue runs step two: it sends the check summary to the generator and
// records the reply. Directives in the continuation reply are not executed.
func (e *Engine) Continue(ctx context.Context, snap *domain.Snapshot, summary string) (string, *domain.Snapshot, error) {
	ctx, span := e.tracer.Start(ctx, "keeper.continue", trace.WithAttributes(
		attribute.String("session.id", snap.SessionID),
	))
	defer span.End()

	gen, err := e.generate(ctx, snap, ports.StepContinuation, summary)
	if err != nil {
		recordSpanError(span, err)
		return "", nil, err
	}
	next := snap.Clone()
	next.AppendHistory(domain.RoleUser, summary)
	next.AppendHistory(domain.RoleAssistant, gen.Text)
	next.Usage = next.Usage.Add(gen.Usage)
	return directive.ParseResponse(gen.Text).Narrative, next, nil
}

// Play runs Act and, when checks were resolved, Continue. The new snapshot
// is returned only if every round-trip succeeded.
func (e *Engine) Play(ctx context.Context, snap *domain.Snapshot, req ActionRequest) (*ActionResult, *domain.Snapshot, error) {
	res, next, err := e.Act(ctx, snap, req)
	if err != nil {
		return nil, nil, err
	}
	return e.followUp(ctx, res, next)
}

// PushCheck spends the pending push offer of actorID. It is fully
// deterministic and makes no generator call.
func (e *Engine) PushCheck(ctx context.Context, snap *domain.Snapshot, actorID string, seed *int64) (*ActionResult, *domain.Snapshot, error) {
	ctx, span := e.tracer.Start(ctx, "keeper.push", trace.WithAttributes(
		attribute.String("session.id", snap.SessionID),
		attribute.String("actor.id", actorID),
	))
	defer span.End()

	if !snap.Phase.IsActive() {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrInactivePhase, snap.Phase)
	}
	s := e.seed(seed)
	res, err := e.executor.Push(ctx, snap, actorID, s)
	if err != nil {
		recordSpanError(span, err)
		return nil, nil, err
	}
	next := res.Snapshot
	return &ActionResult{
		Directives:      nonNil(res.Checks),
		CluesDiscovered: nonNil(res.Clues),
		Phase:           next.Phase,
		NPCActions:      []directive.NPCAction{},
		TurnState:       next.Turn.Clone(),
		Seed:            s,
		Summary:         res.Summary,
		Ending:          res.Ending,
	}, next, nil
}

// Push runs PushCheck and then Continue with its summary.
func (e *Engine) Push(ctx context.Context, snap *domain.Snapshot, actorID string, seed *int64) (*ActionResult, *domain.Snapshot, error) {
	res, next, err := e.PushCheck(ctx, snap, actorID, seed)
	if err != nil {
		return nil, nil, err
	}
	return e.followUp(ctx, res, next)
}

// StartScenario moves the session from the lobby to the introduction and
// asks the generator for the opening narrative.
func (e *Engine) StartScenario(ctx context.Context, snap *domain.Snapshot) (string, *domain.Snapshot, error) {
	next, err := e.Transition(ctx, snap, phase.Intro)
	if err != nil {
		return "", nil, err
	}
	gen, err := e.generate(ctx, next, ports.StepOpening, "")
	if err != nil {
		return "", nil, err
	}
	next.AppendHistory(domain.RoleAssistant, gen.Text)
	next.Usage = next.Usage.Add(gen.Usage)
	return directive.ParseResponse(gen.Text).Narrative, next, nil
}

// BeginExploration ends the introduction.
func (e *Engine) BeginExploration(ctx context.Context, snap *domain.Snapshot) (*domain.Snapshot, error) {
	return e.Transition(ctx, snap, phase.Exploration)
}

// Transition moves the session to phase to along an allowed edge. Entering
// or leaving combat keeps the turn machine coupled to the phase.
func (e *Engine) Transition(ctx context.Context, snap *domain.Snapshot, to phase.Phase) (*domain.Snapshot, error) {
	from := snap.Phase
	m := phase.NewMachine(from)
	if !from.CanTransition(to) {
		return nil, &phase.IllegalTransitionError{From: from, To: to}
	}

	next := snap.Clone()
	turns, err := next.TurnMachine()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptSnapshot, err)
	}
	switch {
	case to == phase.Combat && turns.Mode() != turn.Combat:
		var cs []turn.Combatant
		for _, a := range next.Party() {
			cs = append(cs, turn.Combatant{ID: a.ID, Agility: a.Characteristics.DEX})
		}
		if _, err := turns.EnterCombat(cs); err != nil {
			return nil, err
		}
	case to != phase.Combat && turns.Mode() == turn.Combat:
		turns.ExitCombat(next.Present)
	}

	if err := m.Transition(to); err != nil {
		return nil, err
	}
	next.Phase = m.Current()
	next.SetTurn(turns)

	e.logger.InfoContext(ctx, "phase changed", "session_id", snap.SessionID, "from", from, "to", to)
	if e.hooks.OnPhaseChanged != nil {
		e.hooks.OnPhaseChanged(ctx, &domain.PhaseEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventPhaseChanged, SessionID: snap.SessionID},
			From:      string(from),
			To:        string(to),
		})
	}
	return next, nil
}

func (e *Engine) followUp(ctx context.Context, res *ActionResult, next *domain.Snapshot) (*ActionResult, *domain.Snapshot, error) {
	if res.Summary == "" {
		return res, next, nil
	}
	text, cont, err := e.Continue(ctx, next, res.Summary)
	if err != nil {
		return nil, nil, fmt.Errorf("continuation: %w", err)
	}
	res.Continuation = &text
	return res, cont, nil
}

func (e *Engine) precheck(snap *domain.Snapshot, actorID string) error {
	if !snap.Phase.IsActive() {
		return fmt.Errorf("%w: %s", domain.ErrInactivePhase, snap.Phase)
	}
	if _, ok := snap.Actor(actorID); !ok {
		return fmt.Errorf("%w: %s", domain.ErrMissingActor, actorID)
	}
	m, err := snap.TurnMachine()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptSnapshot, err)
	}
	if !m.CanAct(actorID) {
		return domain.ErrNotYourTurn
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, snap *domain.Snapshot, actorID string, raws []directive.Raw, seed int64) (*runtime.Result, error) {
	ctx, span := e.tracer.Start(ctx, "keeper.execute", trace.WithAttributes(
		attribute.Int("directives", len(raws)),
	))
	defer span.End()

	res, err := e.executor.Execute(ctx, snap, actorID, raws, seed)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("checks", len(res.Checks)),
		attribute.Int("dropped", len(res.Dropped)),
	)
	return res, nil
}

func (e *Engine) generate(ctx context.Context, snap *domain.Snapshot, step ports.Step, input string) (ports.Generation, error) {
	ctx, span := e.tracer.Start(ctx, "keeper.generate", trace.WithAttributes(
		attribute.String("step", string(step)),
	))
	defer span.End()

	req := ports.GenerateRequest{
		SessionID: snap.SessionID,
		Step:      step,
		Input:     input,
		History:   e.window(snap.History),
	}
	if snap.Turn != nil {
		req.Turn = snap.Turn.Clone()
	}
	if e.guardian != nil {
		req.Brief = e.guardian.Brief(snap.Party())
		req.Progress = e.guardian.ProgressPrompt(snap)
	}

	start := time.Now()
	gen, err := e.generator.Generate(ctx, req)
	elapsed := time.Since(start)

	if e.hooks.OnGenerate != nil {
		e.hooks.OnGenerate(ctx, &domain.GenerateEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventGenerate, SessionID: snap.SessionID},
			Step:      string(step),
			Duration:  elapsed,
			Err:       err,
		})
	}
	if err != nil {
		recordSpanError(span, err)
		e.logger.ErrorContext(ctx, "generator failed", "session_id", snap.SessionID, "step", step, "err", err)
		return ports.Generation{}, fmt.Errorf("generate %s: %w", step, err)
	}
	span.SetAttributes(
		attribute.Int("usage.prompt_tokens", gen.Usage.PromptTokens),
		attribute.Int("usage.completion_tokens", gen.Usage.CompletionTokens),
	)
	return gen, nil
}

func (e *Engine) window(h []domain.Message) []domain.Message {
	if e.historyWindow > 0 && len(h) > e.historyWindow {
		h = h[len(h)-e.historyWindow:]
	}
	out := make([]domain.Message, len(h))
	copy(out, h)
	return out
}

func (e *Engine) seed(s *int64) int64 {
	if s != nil {
		return *s
	}
	return e.seeds()
}

func randomSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]) >> 1)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
