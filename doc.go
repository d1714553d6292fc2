/*
Package keeper is the rules engine of an AI-narrated tabletop horror game.

A narrative generator (an LLM or a deterministic script) plays the Keeper of
Arcane Lore. Its replies carry a story for the players and a list of game
directives: skill checks, sanity checks, resource changes, clue discoveries
and mode switches. The engine never trusts the generator with the dice. It
validates every directive, resolves the checks against the actor sheets with
a seeded roller, and feeds the outcomes back to the generator so the story
can follow the dice.

# Concept

Every player action is a two-step protocol:

 1. Act sends the action and the recent history to the generator, parses the
    reply and executes its directives on a copy of the session.
 2. Continue runs only when checks were resolved. It sends a summary of the
    outcomes and records the follow-up narrative.

The new snapshot is returned only when both round-trips succeeded, so a
failed generator call never leaves a half-applied action behind. The
Engine holds no session state. Loading, locking and saving sessions is the
job of the session.Manager in pkg/session, which sits on top of a
ports.StateStore (memory, file, SQLite or Redis).

# Phases

A session moves lobby -> intro -> exploration, then between exploration and
combat until it reaches ending and finished. Combat turns follow DEX order
and an actor acting out of turn gets domain.ErrNotYourTurn before any
generator call.

# Usage

	eng := keeper.New(scripted.New(nil), keeper.WithLogger(logger))
	m := session.NewManager(memory.NewStore(), eng)

	snap, err := m.Create(ctx, "", "haunting", roster)
	if err != nil {
		return err
	}
	opening, err := m.Start(ctx, snap.SessionID)
	if err != nil {
		return err
	}
	fmt.Println(opening)

	res, err := m.Play(ctx, snap.SessionID, keeper.ActionRequest{
		ActorID: "harvey",
		Input:   "I search the desk",
	})
*/
package keeper
