package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/keeper/pkg/dice"
	"github.com/aretw0/keeper/pkg/directive"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/phase"
	"github.com/aretw0/keeper/pkg/sanity"
	"github.com/aretw0/keeper/pkg/scenario"
	"github.com/aretw0/keeper/pkg/skill"
	"github.com/aretw0/keeper/pkg/turn"
)

// Conditions recorded on actors by sanity checks.
const (
	ConditionTemporaryInsanity  = "temporary_insanity"
	ConditionIndefiniteInsanity = "indefinite_insanity"
)

// Progress is the scenario progress collaborator. *scenario.Guardian
// implements it.
type Progress interface {
	KnowsClue(id string) bool
	ClueDescription(id string) string
	Advance(s *domain.Snapshot) []string
	Ending(s *domain.Snapshot) (scenario.Ending, bool)
}

// CheckOutcome is one resolved check, ready for the caller and the
// continuation summary.
type CheckOutcome struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details"`
}

// Dropped describes a directive that was skipped.
type Dropped struct {
	Index  int    `json:"index"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Clue is a newly discovered clue.
type Clue struct {
	ClueID      string `json:"clue_id"`
	Description string `json:"description"`
}

// Result is the outcome of executing one directive batch.
type Result struct {
	// Snapshot is the mutated copy. The input snapshot is never modified.
	Snapshot        *domain.Snapshot
	Checks          []CheckOutcome
	Dropped         []Dropped
	Clues           []Clue
	CompletedPoints []string
	// Summary is the consolidated outcome text for the continuation call. It
	// is empty when no check was resolved.
	Summary string
	// Ending is set when the batch triggered the scenario ending.
	Ending string
}

// Option defines a functional option for configuring the Executor.
type Option func(*Executor)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Executor) {
		e.hooks = hooks
	}
}

// WithProgress attaches the scenario progress collaborator. Without one, any
// clue id is accepted and the ending check is skipped.
func WithProgress(p Progress) Option {
	return func(e *Executor) {
		e.progress = p
	}
}

// Executor applies untrusted directive batches to a snapshot. It is
// stateless and safe for concurrent use across sessions.
type Executor struct {
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	progress Progress
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// batch carries the working copies used while executing one action.
type batch struct {
	snap    *domain.Snapshot
	actor   *domain.Actor
	turns   *turn.Machine
	phases  *phase.Machine
	roller  *dice.Roller
	result  *Result
	started turn.Mode
}

// Execute validates that actorID may act, then applies batch in order to a
// copy of snap. Directives that fail validation or reference missing actors
// or clues are dropped and reported; they never abort the batch.
// ErrNotYourTurn is returned, with no changes, when actorID cannot act.
func (e *Executor) Execute(ctx context.Context, snap *domain.Snapshot, actorID string, raws []directive.Raw, seed int64) (*Result, error) {
	b, err := e.begin(snap, actorID, seed)
	if err != nil {
		return nil, err
	}
	delete(b.snap.PendingPushes, actorID)

	for i, raw := range raws {
		d, err := directive.Decode(raw)
		if err != nil {
			e.drop(ctx, b, i, directive.TypeOf(raw), err)
			continue
		}
		if err := e.apply(ctx, b, d); err != nil {
			e.drop(ctx, b, i, string(d.Kind()), err)
		}
	}

	if b.started == turn.Combat && b.turns.Mode() == turn.Combat {
		if b.turns.ConsumeAction(actorID, b.snap.Present) {
			e.emitTurn(ctx, b)
		}
	}

	e.finish(ctx, b)
	return b.result, nil
}

// Push spends the pending push offer of actorID. It requires the actor to be
// able to act but does not consume an action.
func (e *Executor) Push(ctx context.Context, snap *domain.Snapshot, actorID string, seed int64) (*Result, error) {
	b, err := e.begin(snap, actorID, seed)
	if err != nil {
		return nil, err
	}
	offer, ok := b.snap.PendingPushes[actorID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoPendingPush, actorID)
	}
	delete(b.snap.PendingPushes, actorID)

	out, err := skill.NewResolver(b.roller).Push(offer)
	if err != nil {
		return nil, err
	}
	e.recordSkill(ctx, b, out)

	e.finish(ctx, b)
	return b.result, nil
}

func (e *Executor) begin(snap *domain.Snapshot, actorID string, seed int64) (*batch, error) {
	if _, ok := snap.Actor(actorID); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingActor, actorID)
	}
	current, err := snap.TurnMachine()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptSnapshot, err)
	}
	if !current.CanAct(actorID) {
		return nil, domain.ErrNotYourTurn
	}

	next := snap.Clone()
	turns, _ := next.TurnMachine()
	actor, _ := next.Actor(actorID)
	return &batch{
		snap:    next,
		actor:   actor,
		turns:   turns,
		phases:  phase.NewMachine(next.Phase),
		roller:  dice.NewRoller(seed),
		result:  &Result{Snapshot: next},
		started: turns.Mode(),
	}, nil
}

func (e *Executor) apply(ctx context.Context, b *batch, d directive.Directive) error {
	switch d := d.(type) {
	case directive.SkillCheck:
		value, ok := b.actor.Skill(d.Skill)
		if !ok {
			value = skill.DefaultValue
		}
		out, err := skill.NewResolver(b.roller).Check(d.Skill, value, d.Difficulty, d.BonusDice)
		if err != nil {
			return err
		}
		e.recordSkill(ctx, b, out)
		if offer, ok := out.Offer(); ok {
			b.snap.PendingPushes[b.actor.ID] = offer
		}

	case directive.SanityCheck:
		san, ok := b.actor.Resource(domain.ResourceSanity)
		if !ok {
			return fmt.Errorf("%w: %s on %s", domain.ErrUnknownResource, domain.ResourceSanity, b.actor.ID)
		}
		out, err := sanity.Resolve(b.roller, san.Current, d.LossOnSuccess, d.LossOnFailure)
		if err != nil {
			return err
		}
		if _, err := b.actor.Adjust(domain.ResourceSanity, -out.Loss); err != nil {
			return err
		}
		switch out.Madness {
		case sanity.MadnessTemporary:
			b.actor.AddCondition(ConditionTemporaryInsanity)
		case sanity.MadnessIndefinite:
			b.actor.AddCondition(ConditionIndefiniteInsanity)
		}
		e.recordSanity(ctx, b, out)

	case directive.ClueDiscovered:
		if e.progress != nil && !e.progress.KnowsClue(d.ClueID) {
			return fmt.Errorf("%w: %s", domain.ErrMissingClue, d.ClueID)
		}
		if b.snap.AddClue(d.ClueID) {
			desc := d.ClueID
			if e.progress != nil {
				desc = e.progress.ClueDescription(d.ClueID)
			}
			b.result.Clues = append(b.result.Clues, Clue{ClueID: d.ClueID, Description: desc})
		}

	case directive.ModeSwitch:
		return e.switchMode(ctx, b, d.Mode)

	case directive.SwitchCharacter:
		if !b.snap.Present(d.NextCharacterID) {
			return fmt.Errorf("%w: %s", domain.ErrMissingActor, d.NextCharacterID)
		}
		return b.turns.ForceActive(d.NextCharacterID)

	case directive.GrantExtraAction:
		target := d.Target()
		if !b.snap.Present(target) {
			return fmt.Errorf("%w: %s", domain.ErrMissingActor, target)
		}
		return b.turns.GrantExtraAction(target, d.ActionCount)
	}
	return nil
}

// switchMode changes the turn mode and follows it with the session phase
// when the phase edge is legal. Phases without that edge (intro, ending)
// keep their phase while the turn mode still changes.
func (e *Executor) switchMode(ctx context.Context, b *batch, target turn.Mode) error {
	if b.turns.Mode() == target {
		return nil
	}

	switch target {
	case turn.Combat:
		var combatants []turn.Combatant
		for _, a := range b.snap.Party() {
			combatants = append(combatants, turn.Combatant{ID: a.ID, Agility: a.Characteristics.DEX})
		}
		if _, err := b.turns.EnterCombat(combatants); err != nil {
			return err
		}
	case turn.Exploration:
		b.turns.ExitCombat(b.snap.Present)
	}

	from := b.phases.Current()
	to := phase.Phase(target)
	if !from.CanTransition(to) {
		e.logger.DebugContext(ctx, "mode switched without phase change",
			"session_id", b.snap.SessionID,
			"mode", string(target),
			"phase", string(from),
		)
		return nil
	}
	if err := b.phases.Transition(to); err != nil {
		return err
	}
	e.emitPhase(ctx, b, from, to)
	return nil
}

func (e *Executor) finish(ctx context.Context, b *batch) {
	if len(b.result.Checks) > 0 {
		lines := []string{"[System] Check results:"}
		for _, c := range b.result.Checks {
			lines = append(lines, "- "+c.Description)
		}
		b.result.Summary = strings.Join(lines, "\n")
	}

	if e.progress != nil {
		b.result.CompletedPoints = e.progress.Advance(b.snap)
		if ending, ok := e.progress.Ending(b.snap); ok {
			from := b.phases.Current()
			if b.phases.Transition(phase.Ending) == nil {
				if b.turns.Mode() == turn.Combat {
					b.turns.ExitCombat(b.snap.Present)
				}
				b.result.Ending = ending.ID
				e.emitPhase(ctx, b, from, phase.Ending)
			}
		}
	}

	b.snap.Phase = b.phases.Current()
	b.snap.SetTurn(b.turns)
}

func (e *Executor) recordSkill(ctx context.Context, b *batch, out skill.Outcome) {
	verdict := "failure"
	if out.Success {
		verdict = "success"
	}
	desc := fmt.Sprintf("%s %s check: %d/%d %s (%s)", b.actor.Name, out.Skill, out.Result.Roll, out.Result.Target, verdict, out.Result.Tier)
	if out.Result.Pushed {
		desc = "[pushed] " + desc
	}
	b.result.Checks = append(b.result.Checks, CheckOutcome{
		Type:        string(directive.KindSkillCheck),
		Description: desc,
		Details: map[string]any{
			"skill":      out.Skill,
			"roll":       out.Result.Roll,
			"target":     out.Result.Target,
			"difficulty": string(out.Difficulty),
			"bonus_dice": out.Result.BonusDice,
			"result":     out.Result.Tier.String(),
			"success":    out.Success,
			"can_push":   out.CanPush,
			"pushed":     out.Result.Pushed,
		},
	})
	e.emitCheck(ctx, b, "skill", out.Skill, out.Result.Tier, out.Result.Pushed)
}

func (e *Executor) recordSanity(ctx context.Context, b *batch, out sanity.Outcome) {
	verdict, tier := "failure", dice.Failure
	if out.Success {
		verdict, tier = "success", dice.RegularSuccess
	}
	var madness any
	if out.Madness != sanity.MadnessNone {
		madness = string(out.Madness)
	}
	b.result.Checks = append(b.result.Checks, CheckOutcome{
		Type:        string(directive.KindSanityCheck),
		Description: fmt.Sprintf("%s sanity check: %d/%d %s, loses %d SAN", b.actor.Name, out.Roll, out.Current, verdict, out.Loss),
		Details: map[string]any{
			"roll":        out.Roll,
			"current_san": out.Current,
			"success":     out.Success,
			"san_lost":    out.Loss,
			"new_san":     out.New,
			"madness":     madness,
		},
	})
	e.emitCheck(ctx, b, "sanity", "", tier, false)
}

func (e *Executor) drop(ctx context.Context, b *batch, index int, kind string, err error) {
	b.result.Dropped = append(b.result.Dropped, Dropped{Index: index, Type: kind, Reason: err.Error()})
	e.logger.WarnContext(ctx, "directive dropped",
		"session_id", b.snap.SessionID,
		"directive_index", index,
		"directive_type", kind,
		"err", err,
	)
	if e.hooks.OnDirectiveDropped != nil {
		e.hooks.OnDirectiveDropped(ctx, &domain.DirectiveEvent{
			EventBase: e.base(b, domain.EventDirectiveDropped),
			Index:     index,
			Kind:      kind,
			Reason:    reason(err),
		})
	}
}

// reason maps an error to a low-cardinality label.
func reason(err error) string {
	switch {
	case errors.Is(err, directive.ErrInvalid), errors.Is(err, dice.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrMissingActor):
		return "missing_actor"
	case errors.Is(err, domain.ErrMissingClue):
		return "missing_clue"
	case errors.Is(err, phase.ErrIllegalTransition), errors.Is(err, turn.ErrNotExploration):
		return "illegal_for_mode"
	default:
		return "other"
	}
}

func (e *Executor) base(b *batch, t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), Type: t, SessionID: b.snap.SessionID}
}

func (e *Executor) emitCheck(ctx context.Context, b *batch, kind, name string, tier dice.Tier, pushed bool) {
	if e.hooks.OnCheckResolved == nil {
		return
	}
	e.hooks.OnCheckResolved(ctx, &domain.CheckEvent{
		EventBase: e.base(b, domain.EventCheckResolved),
		ActorID:   b.actor.ID,
		Kind:      kind,
		Name:      name,
		Tier:      tier.String(),
		Pushed:    pushed,
	})
}

func (e *Executor) emitTurn(ctx context.Context, b *batch) {
	e.logger.DebugContext(ctx, "turn advanced", "session_id", b.snap.SessionID, "actor_id", b.turns.Current(), "round", b.turns.Round())
	if e.hooks.OnTurnAdvanced == nil {
		return
	}
	e.hooks.OnTurnAdvanced(ctx, &domain.TurnEvent{
		EventBase: e.base(b, domain.EventTurnAdvanced),
		ActorID:   b.turns.Current(),
		Round:     b.turns.Round(),
	})
}

func (e *Executor) emitPhase(ctx context.Context, b *batch, from, to phase.Phase) {
	e.logger.InfoContext(ctx, "phase changed", "session_id", b.snap.SessionID, "from", from, "to", to)
	if e.hooks.OnPhaseChanged == nil {
		return
	}
	e.hooks.OnPhaseChanged(ctx, &domain.PhaseEvent{
		EventBase: e.base(b, domain.EventPhaseChanged),
		From:      string(from),
		To:        string(to),
	})
}
