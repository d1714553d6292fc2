package runtime_test

import (
	"context"
	"os"
	"testing"

	"github.com/aretw0/keeper/internal/runtime"
	"github.com/aretw0/keeper/pkg/dice"
	"github.com/aretw0/keeper/pkg/directive"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/phase"
	"github.com/aretw0/keeper/pkg/scenario"
	"github.com/aretw0/keeper/pkg/skill"
	"github.com/aretw0/keeper/pkg/turn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actor(id string, dex, san int) *domain.Actor {
	return &domain.Actor{
		ID:              id,
		Name:            id,
		Characteristics: domain.Characteristics{DEX: dex},
		Resources: map[string]domain.Resource{
			domain.ResourceHP:     {Current: 10, Max: 10},
			domain.ResourceSanity: {Current: san, Max: 99},
		},
		Skills: map[string]int{"Spot Hidden": 60},
	}
}

func explorationSnapshot(t *testing.T) *domain.Snapshot {
	t.Helper()
	s := domain.NewSnapshot("s1", "haunting")
	s.Phase = phase.Exploration
	require.NoError(t, s.AddActor(actor("alice", 50, 60)))
	require.NoError(t, s.AddActor(actor("bob", 70, 45)))
	require.NoError(t, s.AddActor(actor("carol", 60, 30)))
	npc := actor("ghoul", 90, 0)
	npc.IsNPC = true
	require.NoError(t, s.AddActor(npc))
	return s
}

func combatSnapshot(t *testing.T) *domain.Snapshot {
	t.Helper()
	s := explorationSnapshot(t)
	res, err := runtime.NewExecutor().Execute(context.Background(), s, "alice",
		[]directive.Raw{{"type": "mode_switch", "mode": "combat"}}, 1)
	require.NoError(t, err)
	require.Empty(t, res.Dropped)
	return res.Snapshot
}

func guardian(t *testing.T) *scenario.Guardian {
	t.Helper()
	data, err := os.ReadFile("../../pkg/scenario/testdata/haunting/scenario.yaml")
	require.NoError(t, err)
	sc, err := scenario.Parse(data)
	require.NoError(t, err)
	return scenario.NewGuardian(sc)
}

func TestExecute_UnknownSkillAndSanityBothApply(t *testing.T) {
	s := explorationSnapshot(t)
	res, err := runtime.NewExecutor().Execute(context.Background(), s, "alice", []directive.Raw{
		{"type": "skill_check", "skill": "Occult Lore Nobody Has"},
		{"type": "sanity_check", "san_loss_success": "1", "san_loss_failure": "1d6"},
	}, 42)
	require.NoError(t, err)

	require.Len(t, res.Checks, 2)
	assert.Empty(t, res.Dropped)
	assert.Equal(t, 50, res.Checks[0].Details["target"], "unknown skills use the default value")

	loss := res.Checks[1].Details["san_lost"].(int)
	assert.Positive(t, loss)
	assert.Equal(t, 60-loss, res.Snapshot.Actors["alice"].Resources[domain.ResourceSanity].Current)
	assert.Equal(t, 60, s.Actors["alice"].Resources[domain.ResourceSanity].Current, "input snapshot untouched")

	assert.Contains(t, res.Summary, "[System] Check results:")
	assert.Contains(t, res.Summary, "- alice Occult Lore Nobody Has check:")
	assert.Contains(t, res.Summary, "- alice sanity check:")
}

func TestExecute_Deterministic(t *testing.T) {
	batch := []directive.Raw{
		{"type": "skill_check", "skill": "Spot Hidden", "bonus_dice": 1},
		{"type": "sanity_check", "san_loss_failure": "1d10"},
	}
	a, err := runtime.NewExecutor().Execute(context.Background(), explorationSnapshot(t), "bob", batch, 7)
	require.NoError(t, err)
	b, err := runtime.NewExecutor().Execute(context.Background(), explorationSnapshot(t), "bob", batch, 7)
	require.NoError(t, err)
	assert.Equal(t, a.Checks, b.Checks)
	assert.Equal(t, a.Summary, b.Summary)
}

func TestExecute_NotYourTurnMutatesNothing(t *testing.T) {
	s := combatSnapshot(t)
	before := s.Clone()

	_, err := runtime.NewExecutor().Execute(context.Background(), s, "alice", []directive.Raw{
		{"type": "sanity_check", "san_loss_failure": "1d6"},
		{"type": "mode_switch", "mode": "exploration"},
	}, 3)
	assert.ErrorIs(t, err, domain.ErrNotYourTurn)
	assert.Equal(t, before, s)
}

func TestExecute_MissingActor(t *testing.T) {
	_, err := runtime.NewExecutor().Execute(context.Background(), explorationSnapshot(t), "zed", nil, 1)
	assert.ErrorIs(t, err, domain.ErrMissingActor)
}

func TestExecute_ModeSwitchCouplesPhase(t *testing.T) {
	s := combatSnapshot(t)
	assert.Equal(t, phase.Combat, s.Phase)
	require.NotNil(t, s.Turn)
	assert.Equal(t, turn.Combat, s.Turn.Mode)
	assert.Equal(t, []string{"bob", "carol", "alice"}, s.Turn.Queue, "party only, by DEX")
	assert.Equal(t, 1, s.Turn.Round)

	res, err := runtime.NewExecutor().Execute(context.Background(), s, "bob",
		[]directive.Raw{{"type": "mode_switch", "mode": "exploration"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, phase.Exploration, res.Snapshot.Phase)
	assert.Equal(t, turn.Exploration, res.Snapshot.Turn.Mode)
	assert.Empty(t, res.Snapshot.Turn.Queue)
}

func TestExecute_ModeSwitchWithoutPhaseEdgeKeepsPhase(t *testing.T) {
	s := explorationSnapshot(t)
	s.Phase = phase.Intro

	res, err := runtime.NewExecutor().Execute(context.Background(), s, "alice",
		[]directive.Raw{{"type": "mode_switch", "mode": "combat"}}, 1)
	require.NoError(t, err)
	assert.Empty(t, res.Dropped)
	assert.Equal(t, phase.Intro, res.Snapshot.Phase)
	assert.Equal(t, turn.Combat, res.Snapshot.Turn.Mode)
	assert.Equal(t, []string{"bob", "carol", "alice"}, res.Snapshot.Turn.Queue)
}

func TestExecute_ModeSwitchLeavesCombatDuringEnding(t *testing.T) {
	s := combatSnapshot(t)
	s.Phase = phase.Ending

	res, err := runtime.NewExecutor().Execute(context.Background(), s, "bob",
		[]directive.Raw{{"type": "mode_switch", "mode": "exploration"}}, 1)
	require.NoError(t, err)
	assert.Empty(t, res.Dropped)
	assert.Equal(t, phase.Ending, res.Snapshot.Phase)
	assert.Equal(t, turn.Exploration, res.Snapshot.Turn.Mode)
	assert.Empty(t, res.Snapshot.Turn.Queue)
}

func TestExecute_ModeSwitchSameModeIsNoop(t *testing.T) {
	s := explorationSnapshot(t)
	res, err := runtime.NewExecutor().Execute(context.Background(), s, "alice",
		[]directive.Raw{{"type": "mode_switch", "mode": "exploration"}}, 1)
	require.NoError(t, err)
	assert.Empty(t, res.Dropped)
	assert.Equal(t, phase.Exploration, res.Snapshot.Phase)
}

func TestExecute_CombatConsumesAndAdvances(t *testing.T) {
	s := combatSnapshot(t)
	exec := runtime.NewExecutor()
	ctx := context.Background()

	for _, id := range []string{"bob", "carol", "alice"} {
		res, err := exec.Execute(ctx, s, id, nil, 1)
		require.NoError(t, err, id)
		s = res.Snapshot
	}
	assert.Equal(t, 2, s.Turn.Round)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 1, "carol": 1}, s.Turn.ActionsRemaining)
	assert.Equal(t, 0, s.Turn.CurrentIndex)
}

func TestExecute_EnteringCombatDoesNotConsume(t *testing.T) {
	s := combatSnapshot(t)
	assert.Equal(t, 1, s.Turn.ActionsRemaining["alice"])
	assert.Equal(t, 0, s.Turn.CurrentIndex)
}

func TestExecute_GrantExtraAction(t *testing.T) {
	s := combatSnapshot(t)
	res, err := runtime.NewExecutor().Execute(context.Background(), s, "bob", []directive.Raw{
		{"type": "grant_extra_action", "target_character": "bob"},
		{"type": "grant_extra_action", "target_character": "nobody"},
	}, 1)
	require.NoError(t, err)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, 1, res.Dropped[0].Index)

	assert.Equal(t, "bob", res.Snapshot.Turn.Queue[res.Snapshot.Turn.CurrentIndex])
	assert.Equal(t, 1, res.Snapshot.Turn.ActionsRemaining["bob"])
}

func TestExecute_SwitchCharacter(t *testing.T) {
	s := explorationSnapshot(t)
	res, err := runtime.NewExecutor().Execute(context.Background(), s, "alice", []directive.Raw{
		{"type": "switch_character", "next_character_id": "carol"},
		{"type": "switch_character", "next_character_id": "nobody"},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "carol", res.Snapshot.Turn.ActiveActorID)
	require.Len(t, res.Dropped, 1)

	c := combatSnapshot(t)
	res, err = runtime.NewExecutor().Execute(context.Background(), c, "bob", []directive.Raw{
		{"type": "switch_character", "next_character_id": "carol"},
	}, 1)
	require.NoError(t, err)
	require.Len(t, res.Dropped, 1, "switch_character is exploration only")
}

func TestExecute_MalformedDirectivesDoNotAbortBatch(t *testing.T) {
	res, err := runtime.NewExecutor().Execute(context.Background(), explorationSnapshot(t), "alice", []directive.Raw{
		{"type": "skill_check", "skill": "Climb", "bonus_dice": 9},
		{"type": "sanity_check", "san_loss_failure": "lots"},
		{"type": "levitate"},
		{"type": "skill_check", "skill": "Spot Hidden"},
	}, 1)
	require.NoError(t, err)
	assert.Len(t, res.Dropped, 3)
	assert.Len(t, res.Checks, 1)
}

func TestExecute_ParsedPayloadWithMalformedElement(t *testing.T) {
	resp := directive.ParseResponse(`{"narrative": "Cold air.", "game_directives": ["oops", {"type": "sanity_check", "san_loss_success": "1", "san_loss_failure": "1d4"}]}`)
	require.True(t, resp.Structured)

	res, err := runtime.NewExecutor().Execute(context.Background(), explorationSnapshot(t), "alice", resp.Directives, 1)
	require.NoError(t, err)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, 0, res.Dropped[0].Index)
	require.Len(t, res.Checks, 1)
	assert.Equal(t, "sanity_check", res.Checks[0].Type)
}

func TestExecute_NoChecksNoSummary(t *testing.T) {
	res, err := runtime.NewExecutor().Execute(context.Background(), explorationSnapshot(t), "alice", []directive.Raw{
		{"type": "clue_discovered", "clue_id": "anything"},
	}, 1)
	require.NoError(t, err)
	assert.Empty(t, res.Summary)
	assert.Equal(t, []runtime.Clue{{ClueID: "anything", Description: "anything"}}, res.Clues)
}

func TestExecute_CluesAndEnding(t *testing.T) {
	var phases []string
	exec := runtime.NewExecutor(
		runtime.WithProgress(guardian(t)),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnPhaseChanged: func(_ context.Context, e *domain.PhaseEvent) { phases = append(phases, e.To) },
		}),
	)
	s := explorationSnapshot(t)

	res, err := exec.Execute(context.Background(), s, "alice", []directive.Raw{
		{"type": "clue_discovered", "clue_id": "newspaper"},
		{"type": "clue_discovered", "clue_id": "not-in-catalog"},
	}, 1)
	require.NoError(t, err)
	require.Len(t, res.Dropped, 1)
	assert.Contains(t, res.Dropped[0].Reason, "clue not found")
	assert.Equal(t, []string{"research"}, res.CompletedPoints)
	assert.Equal(t, "An old article about the Macario family", res.Clues[0].Description)
	assert.Empty(t, res.Ending)

	res, err = exec.Execute(context.Background(), res.Snapshot, "alice", []directive.Raw{
		{"type": "clue_discovered", "clue_id": "diary"},
		{"type": "clue_discovered", "clue_id": "basement_door"},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "victory", res.Ending)
	assert.Equal(t, phase.Ending, res.Snapshot.Phase)
	assert.Equal(t, []string{"ending"}, phases)
}

func TestExecute_EndingDuringCombatExitsCombat(t *testing.T) {
	exec := runtime.NewExecutor(runtime.WithProgress(guardian(t)))
	ctx := context.Background()
	s := combatSnapshot(t)

	res, err := exec.Execute(ctx, s, "bob", []directive.Raw{
		{"type": "clue_discovered", "clue_id": "newspaper"},
	}, 1)
	require.NoError(t, err)
	require.Empty(t, res.Ending)
	assert.Equal(t, turn.Combat, res.Snapshot.Turn.Mode)

	res, err = exec.Execute(ctx, res.Snapshot, "carol", []directive.Raw{
		{"type": "clue_discovered", "clue_id": "diary"},
		{"type": "clue_discovered", "clue_id": "basement_door"},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "victory", res.Ending)
	assert.Equal(t, phase.Ending, res.Snapshot.Phase)
	assert.Equal(t, turn.Exploration, res.Snapshot.Turn.Mode)

	// Anyone may act again once combat is over.
	res, err = exec.Execute(ctx, res.Snapshot, "alice", []directive.Raw{
		{"type": "mode_switch", "mode": "exploration"},
	}, 1)
	require.NoError(t, err)
	assert.Empty(t, res.Dropped)
	assert.Equal(t, phase.Ending, res.Snapshot.Phase)
}

func TestPush(t *testing.T) {
	exec := runtime.NewExecutor()
	ctx := context.Background()
	s := explorationSnapshot(t)
	s.Actors["alice"].Skills["Climb"] = 5

	var offered *domain.Snapshot
	for seed := int64(0); seed < 100 && offered == nil; seed++ {
		res, err := exec.Execute(ctx, s, "alice", []directive.Raw{{"type": "skill_check", "skill": "Climb"}}, seed)
		require.NoError(t, err)
		if res.Checks[0].Details["can_push"] == true {
			offered = res.Snapshot
		}
	}
	require.NotNil(t, offered)
	require.Contains(t, offered.PendingPushes, "alice")

	res, err := exec.Push(ctx, offered, "alice", 99)
	require.NoError(t, err)
	require.Len(t, res.Checks, 1)
	assert.Equal(t, true, res.Checks[0].Details["pushed"])
	assert.Equal(t, false, res.Checks[0].Details["can_push"])
	assert.NotContains(t, res.Snapshot.PendingPushes, "alice")

	_, err = exec.Push(ctx, res.Snapshot, "alice", 100)
	assert.ErrorIs(t, err, domain.ErrNoPendingPush)
}

func TestPush_OfferClearedByNextAction(t *testing.T) {
	s := explorationSnapshot(t)
	s.PendingPushes["alice"] = skill.Offer{Skill: "Climb", Value: 5, Difficulty: dice.Regular}
	res, err := runtime.NewExecutor().Execute(context.Background(), s, "alice", nil, 1)
	require.NoError(t, err)
	assert.NotContains(t, res.Snapshot.PendingPushes, "alice")
}

func TestExecute_Hooks(t *testing.T) {
	var checks, dropped, advanced int
	exec := runtime.NewExecutor(runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnCheckResolved:    func(context.Context, *domain.CheckEvent) { checks++ },
		OnDirectiveDropped: func(context.Context, *domain.DirectiveEvent) { dropped++ },
		OnTurnAdvanced:     func(context.Context, *domain.TurnEvent) { advanced++ },
	}))
	s := combatSnapshot(t)
	_, err := exec.Execute(context.Background(), s, "bob", []directive.Raw{
		{"type": "skill_check", "skill": "Dodge"},
		{"type": "nonsense"},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, checks)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, advanced)
}
