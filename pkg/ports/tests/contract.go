package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/phase"
	"github.com/aretw0/keeper/pkg/ports"
	"github.com/aretw0/keeper/pkg/turn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewSampleSnapshot builds a snapshot in the middle of combat, with two
// investigators, a clue and some history.
func NewSampleSnapshot(sessionID string) *domain.Snapshot {
	s := domain.NewSnapshot(sessionID, "haunting")
	s.Phase = phase.Combat
	for _, a := range []*domain.Actor{
		{
			ID: "alice", Name: "Alice",
			Characteristics: domain.Characteristics{DEX: 60},
			Resources:       map[string]domain.Resource{domain.ResourceHP: {Current: 9, Max: 11}, domain.ResourceSanity: {Current: 55, Max: 99}},
			Skills:          map[string]int{"Spot Hidden": 65},
		},
		{
			ID: "bob", Name: "Bob",
			Characteristics: domain.Characteristics{DEX: 70},
			Resources:       map[string]domain.Resource{domain.ResourceHP: {Current: 12, Max: 12}, domain.ResourceSanity: {Current: 40, Max: 99}},
			Skills:          map[string]int{"Dodge": 35},
		},
	} {
		_ = s.AddActor(a)
	}
	m := turn.New()
	_, _ = m.EnterCombat([]turn.Combatant{{ID: "alice", Agility: 60}, {ID: "bob", Agility: 70}})
	s.SetTurn(m)
	s.AddClue("diary")
	s.AppendHistory(domain.RoleUser, "I open the door")
	s.Usage = domain.Usage{PromptTokens: 120, CompletionTokens: 80, Calls: 1}
	return s
}

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store ports.StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := NewSampleSnapshot(sessionID)

		err := store.Save(ctx, sessionID, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.Phase, loaded.Phase)
		assert.Equal(t, snap.Actors, loaded.Actors)
		assert.Equal(t, snap.ActorOrder, loaded.ActorOrder)
		assert.Equal(t, snap.DiscoveredClues, loaded.DiscoveredClues)
		assert.Equal(t, snap.History, loaded.History)
		assert.Equal(t, snap.Usage, loaded.Usage)
		require.NotNil(t, loaded.Turn)
		assert.Equal(t, *snap.Turn, *loaded.Turn)
	})

	t.Run("Load returns an independent copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Actors["alice"].Skills["Spot Hidden"] = 1

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 65, again.Actors["alice"].Skills["Spot Hidden"])
	})

	t.Run("Overwrite", func(t *testing.T) {
		snap := NewSampleSnapshot(sessionID)
		snap.Phase = phase.Ending
		require.NoError(t, store.Save(ctx, sessionID, snap))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, phase.Ending, loaded.Phase)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, NewSampleSnapshot(sessionID))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, NewSampleSnapshot(id1))
		_ = store.Save(ctx, id2, NewSampleSnapshot(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
