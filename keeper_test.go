package keeper_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/aretw0/keeper"
	"github.com/aretw0/keeper/pkg/dice"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/phase"
	"github.com/aretw0/keeper/pkg/ports"
	"github.com/aretw0/keeper/pkg/scenario"
	"github.com/aretw0/keeper/pkg/skill"
	"github.com/aretw0/keeper/pkg/turn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, req ports.GenerateRequest) (ports.Generation, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ports.Generation), args.Error(1)
}

func step(s ports.Step) any {
	return mock.MatchedBy(func(r ports.GenerateRequest) bool { return r.Step == s })
}

func reply(text string) ports.Generation {
	return ports.Generation{Text: text, Usage: domain.Usage{PromptTokens: 10, CompletionTokens: 5, Calls: 1}}
}

func seed(v int64) *int64 { return &v }

const spotHidden = `{"narrative": "You search the study.", "game_directives": [{"type": "skill_check", "skill": "Spot Hidden"}], "atmosphere": "tense"}`

func newSession(t *testing.T) *domain.Snapshot {
	t.Helper()
	s := domain.NewSnapshot("s1", "haunting")
	s.Phase = phase.Exploration
	for _, a := range []*domain.Actor{
		{
			ID: "alice", Name: "Alice",
			Characteristics: domain.Characteristics{DEX: 60},
			Resources:       map[string]domain.Resource{domain.ResourceHP: {Current: 11, Max: 11}, domain.ResourceSanity: {Current: 55, Max: 99}},
			Skills:          map[string]int{"Spot Hidden": 65},
		},
		{
			ID: "bob", Name: "Bob",
			Characteristics: domain.Characteristics{DEX: 70},
			Resources:       map[string]domain.Resource{domain.ResourceHP: {Current: 12, Max: 12}, domain.ResourceSanity: {Current: 40, Max: 99}},
		},
	} {
		require.NoError(t, s.AddActor(a))
	}
	return s
}

func TestPlay_CheckAndContinuation(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, step(ports.StepAction)).Return(reply(spotHidden), nil).Once()
	gen.On("Generate", mock.Anything, step(ports.StepContinuation)).Return(reply("The drawer slides open."), nil).Once()

	eng := keeper.New(gen)
	snap := newSession(t)

	res, next, err := eng.Play(context.Background(), snap, keeper.ActionRequest{ActorID: "alice", Input: "I search the desk", Seed: seed(7)})
	require.NoError(t, err)
	gen.AssertExpectations(t)

	assert.Equal(t, "You search the study.", res.Narrative)
	assert.Equal(t, "tense", res.Atmosphere)
	require.Len(t, res.Directives, 1)
	assert.Equal(t, "skill_check", res.Directives[0].Type)
	assert.Contains(t, res.Summary, "[System] Check results:")
	require.NotNil(t, res.Continuation)
	assert.Equal(t, "The drawer slides open.", *res.Continuation)
	assert.Equal(t, int64(7), res.Seed)
	assert.Empty(t, res.Error)

	require.Len(t, next.History, 4)
	assert.Equal(t, domain.RoleUser, next.History[0].Role)
	assert.Equal(t, "I search the desk", next.History[0].Content)
	assert.Equal(t, res.Summary, next.History[2].Content)
	assert.Equal(t, domain.Usage{PromptTokens: 20, CompletionTokens: 10, Calls: 2}, next.Usage)

	assert.Empty(t, snap.History, "input snapshot must not change")
}

func TestPlay_NoChecksSkipsContinuation(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, step(ports.StepAction)).Return(reply("Rain drums on the windows."), nil).Once()

	res, next, err := keeper.New(gen).Play(context.Background(), newSession(t), keeper.ActionRequest{ActorID: "alice", Input: "I wait"})
	require.NoError(t, err)
	gen.AssertExpectations(t)
	gen.AssertNumberOfCalls(t, "Generate", 1)

	assert.Equal(t, "Rain drums on the windows.", res.Narrative)
	assert.Nil(t, res.Continuation)
	assert.Empty(t, res.Summary)
	assert.Equal(t, phase.Exploration, res.Phase)
	assert.Len(t, next.History, 2)
}

func TestAct_Deterministic(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(reply(spotHidden), nil)
	eng := keeper.New(gen)
	snap := newSession(t)

	a, _, err := eng.Act(context.Background(), snap, keeper.ActionRequest{ActorID: "alice", Input: "x", Seed: seed(99)})
	require.NoError(t, err)
	b, _, err := eng.Act(context.Background(), snap, keeper.ActionRequest{ActorID: "alice", Input: "x", Seed: seed(99)})
	require.NoError(t, err)
	assert.Equal(t, a.Directives, b.Directives)
}

func TestAct_SeedSourceUsedWhenMissing(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(reply(spotHidden), nil)
	eng := keeper.New(gen, keeper.WithSeedSource(func() int64 { return 1234 }))

	res, _, err := eng.Act(context.Background(), newSession(t), keeper.ActionRequest{ActorID: "alice", Input: "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(1234), res.Seed)
}

func TestAct_NotYourTurn(t *testing.T) {
	gen := new(mockGenerator)
	eng := keeper.New(gen)

	snap := newSession(t)
	next, err := eng.Transition(context.Background(), snap, phase.Combat)
	require.NoError(t, err)
	require.Equal(t, "bob", next.Turn.Queue[0], "higher DEX acts first")

	res, out, err := eng.Act(context.Background(), next, keeper.ActionRequest{ActorID: "alice", Input: "I shoot"})
	assert.ErrorIs(t, err, domain.ErrNotYourTurn)
	assert.Nil(t, res)
	assert.Nil(t, out)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)

	flagged := keeper.NotYourTurn(next)
	assert.Equal(t, "not_your_turn", flagged.Error)
	assert.Equal(t, phase.Combat, flagged.Phase)
	assert.Equal(t, "bob", flagged.TurnState.Queue[flagged.TurnState.CurrentIndex])
}

func TestAct_InactivePhase(t *testing.T) {
	gen := new(mockGenerator)
	snap := newSession(t)
	snap.Phase = phase.Lobby

	_, _, err := keeper.New(gen).Act(context.Background(), snap, keeper.ActionRequest{ActorID: "alice", Input: "hi"})
	assert.ErrorIs(t, err, domain.ErrInactivePhase)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAct_MissingActor(t *testing.T) {
	gen := new(mockGenerator)
	_, _, err := keeper.New(gen).Act(context.Background(), newSession(t), keeper.ActionRequest{ActorID: "carol", Input: "hi"})
	assert.ErrorIs(t, err, domain.ErrMissingActor)
}

func TestPlay_GeneratorFailureCommitsNothing(t *testing.T) {
	boom := errors.New("upstream timeout")

	t.Run("action step", func(t *testing.T) {
		gen := new(mockGenerator)
		gen.On("Generate", mock.Anything, step(ports.StepAction)).Return(ports.Generation{}, boom)

		res, next, err := keeper.New(gen).Play(context.Background(), newSession(t), keeper.ActionRequest{ActorID: "alice", Input: "x"})
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, res)
		assert.Nil(t, next)
	})

	t.Run("continuation step", func(t *testing.T) {
		gen := new(mockGenerator)
		gen.On("Generate", mock.Anything, step(ports.StepAction)).Return(reply(spotHidden), nil)
		gen.On("Generate", mock.Anything, step(ports.StepContinuation)).Return(ports.Generation{}, boom)

		snap := newSession(t)
		res, next, err := keeper.New(gen).Play(context.Background(), snap, keeper.ActionRequest{ActorID: "alice", Input: "x", Seed: seed(1)})
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, res)
		assert.Nil(t, next)
		assert.Empty(t, snap.History)
	})
}

func TestPlay_HooksObserveGeneratorCalls(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, step(ports.StepAction)).Return(reply(spotHidden), nil)
	gen.On("Generate", mock.Anything, step(ports.StepContinuation)).Return(reply("ok"), nil)

	var steps []string
	var checks int
	eng := keeper.New(gen, keeper.WithLifecycleHooks(domain.LifecycleHooks{
		OnGenerate:      func(_ context.Context, e *domain.GenerateEvent) { steps = append(steps, e.Step) },
		OnCheckResolved: func(context.Context, *domain.CheckEvent) { checks++ },
	}))

	_, _, err := eng.Play(context.Background(), newSession(t), keeper.ActionRequest{ActorID: "alice", Input: "x", Seed: seed(3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"action", "continuation"}, steps)
	assert.Equal(t, 1, checks)
}

func TestAct_GuardianContextAndEnding(t *testing.T) {
	sc, err := scenario.NewLoader(filepath.Join("pkg", "scenario", "testdata")).Load("haunting")
	require.NoError(t, err)
	g := scenario.NewGuardian(sc)

	text := `{"narrative": "Everything falls into place.", "game_directives": [
		{"type": "clue_discovered", "clue_id": "newspaper"},
		{"type": "clue_discovered", "clue_id": "diary"},
		{"type": "clue_discovered", "clue_id": "basement_door"},
		{"type": "clue_discovered", "clue_id": "nonexistent"}
	]}`
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r ports.GenerateRequest) bool {
		return r.Step == ports.StepAction && r.SessionID == "s1" && r.Brief != "" && r.Progress != ""
	})).Return(reply(text), nil).Once()

	res, next, err := keeper.New(gen, keeper.WithGuardian(g)).Play(context.Background(), newSession(t), keeper.ActionRequest{ActorID: "alice", Input: "I read everything"})
	require.NoError(t, err)
	gen.AssertExpectations(t)

	assert.Len(t, res.CluesDiscovered, 3)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, 3, res.Dropped[0].Index)
	assert.Equal(t, "victory", res.Ending)
	assert.Equal(t, phase.Ending, res.Phase)
	assert.Equal(t, phase.Ending, next.Phase)
	assert.Equal(t, []string{"basement", "research"}, next.CompletedPoints)
}

func TestPushCheck(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, step(ports.StepContinuation)).Return(reply("You heave again."), nil).Once()
	eng := keeper.New(gen)

	snap := newSession(t)
	snap.PendingPushes["alice"] = skill.Offer{Skill: "Climb", Value: 40, Difficulty: dice.Regular}

	res, next, err := eng.Push(context.Background(), snap, "alice", seed(11))
	require.NoError(t, err)
	require.Len(t, res.Directives, 1)
	assert.Equal(t, true, res.Directives[0].Details["pushed"])
	require.NotNil(t, res.Continuation)
	assert.NotContains(t, next.PendingPushes, "alice")

	_, _, err = eng.PushCheck(context.Background(), next, "alice", seed(11))
	assert.ErrorIs(t, err, domain.ErrNoPendingPush)
}

func TestTransition(t *testing.T) {
	eng := keeper.New(new(mockGenerator))
	ctx := context.Background()
	snap := newSession(t)

	combat, err := eng.Transition(ctx, snap, phase.Combat)
	require.NoError(t, err)
	assert.Equal(t, turn.Combat, combat.Turn.Mode)
	assert.Equal(t, []string{"bob", "alice"}, combat.Turn.Queue)
	assert.Equal(t, turn.Exploration, snap.Turn.Mode, "input unchanged")

	back, err := eng.Transition(ctx, combat, phase.Exploration)
	require.NoError(t, err)
	assert.Equal(t, turn.Exploration, back.Turn.Mode)
	assert.Empty(t, back.Turn.Queue)

	_, err = eng.Transition(ctx, back, phase.Lobby)
	var illegal *phase.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, phase.Exploration, illegal.From)
	assert.ErrorIs(t, err, phase.ErrIllegalTransition)
}

func TestStartScenario(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, step(ports.StepOpening)).Return(reply("Boston, 1923. Rain."), nil).Once()
	eng := keeper.New(gen)

	snap := newSession(t)
	snap.Phase = phase.Lobby

	text, next, err := eng.StartScenario(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, "Boston, 1923. Rain.", text)
	assert.Equal(t, phase.Intro, next.Phase)
	require.Len(t, next.History, 1)
	assert.Equal(t, domain.RoleAssistant, next.History[0].Role)

	explore, err := eng.BeginExploration(context.Background(), next)
	require.NoError(t, err)
	assert.Equal(t, phase.Exploration, explore.Phase)

	_, _, err = eng.StartScenario(context.Background(), explore)
	assert.ErrorIs(t, err, phase.ErrIllegalTransition)
}
