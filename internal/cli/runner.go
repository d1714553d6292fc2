package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aretw0/keeper"
	"github.com/aretw0/keeper/internal/presentation/tui"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/phase"
	"github.com/aretw0/keeper/pkg/session"
	"github.com/muesli/termenv"
)

// Runner drives an interactive session over line-based IO. Commands start
// with a slash; every other line is an action of the current character.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Renderer tui.Renderer
	Profile  termenv.Profile
	Sessions *session.Manager
}

// Run plays sessionID as actorID until EOF, "quit" or the story ends.
func (r *Runner) Run(ctx context.Context, sessionID, actorID string) error {
	if r.Input == nil || r.Output == nil {
		return fmt.Errorf("input and output must be set")
	}
	if r.Renderer == nil {
		r.Renderer = tui.Plain
	}
	lines := bufio.NewReader(r.Input)

	snap, err := r.Sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if snap, err = r.enter(ctx, snap); err != nil {
		return err
	}
	if actorID == "" {
		actorID = firstPlayer(snap)
	}
	if _, ok := snap.Actor(actorID); !ok {
		return fmt.Errorf("%w: %s", domain.ErrMissingActor, actorID)
	}

	for {
		if snap.Phase == phase.Ending || snap.Phase == phase.Finished {
			fmt.Fprintln(r.Output, tui.System("The story has ended."))
			return nil
		}
		fmt.Fprintf(r.Output, "%s> ", actorID)
		text, err := lines.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(text) == "") {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.Output)
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}
		input := strings.TrimSpace(text)

		switch {
		case input == "":
			continue
		case input == "quit" || input == "exit" || input == "/quit":
			fmt.Fprintln(r.Output, "Bye!")
			return nil
		case strings.HasPrefix(input, "/"):
			next, nextActor, err := r.command(ctx, snap, actorID, input)
			if err != nil {
				fmt.Fprintln(r.Output, tui.System("%v", err))
				continue
			}
			actorID = nextActor
			if next != nil {
				snap = next
			}
			continue
		}

		res, err := r.Sessions.Play(ctx, sessionID, keeper.ActionRequest{ActorID: actorID, Input: input})
		if err != nil {
			if errors.Is(err, session.ErrInvalidInput) || errors.Is(err, domain.ErrInactivePhase) {
				fmt.Fprintln(r.Output, tui.System("%v", err))
				continue
			}
			return err
		}
		r.print(res)
		if snap, err = r.Sessions.Get(ctx, sessionID); err != nil {
			return err
		}
	}
}

// enter moves a fresh session through the lobby and intro.
func (r *Runner) enter(ctx context.Context, snap *domain.Snapshot) (*domain.Snapshot, error) {
	var err error
	if snap.Phase == phase.Lobby {
		opening, err := r.Sessions.Start(ctx, snap.SessionID)
		if err != nil {
			return nil, err
		}
		r.narrate(opening)
		if snap, err = r.Sessions.Get(ctx, snap.SessionID); err != nil {
			return nil, err
		}
	}
	if snap.Phase == phase.Intro {
		if snap, err = r.Sessions.Transition(ctx, snap.SessionID, phase.Exploration); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (r *Runner) command(ctx context.Context, snap *domain.Snapshot, actorID, line string) (*domain.Snapshot, string, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/as":
		if len(fields) != 2 {
			return nil, actorID, fmt.Errorf("usage: /as <character-id>")
		}
		if _, ok := snap.Actor(fields[1]); !ok {
			return nil, actorID, fmt.Errorf("%w: %s", domain.ErrMissingActor, fields[1])
		}
		return nil, fields[1], nil
	case "/push":
		res, err := r.Sessions.Push(ctx, snap.SessionID, actorID, nil)
		if err != nil {
			return nil, actorID, err
		}
		r.print(res)
		next, err := r.Sessions.Get(ctx, snap.SessionID)
		return next, actorID, err
	case "/phase":
		if len(fields) != 2 {
			return nil, actorID, fmt.Errorf("usage: /phase <%s>", strings.Join(phaseNames(snap.Phase.Allowed()), "|"))
		}
		to, err := phase.Parse(fields[1])
		if err != nil {
			return nil, actorID, err
		}
		next, err := r.Sessions.Transition(ctx, snap.SessionID, to)
		if err != nil {
			return nil, actorID, err
		}
		fmt.Fprintln(r.Output, tui.System("Phase is now %s.", next.Phase))
		return next, actorID, nil
	case "/status":
		r.status(snap)
		return nil, actorID, nil
	case "/help":
		fmt.Fprintln(r.Output, "Commands: /as <id>, /push, /phase <name>, /status, /quit")
		return nil, actorID, nil
	default:
		return nil, actorID, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
}

func (r *Runner) print(res *keeper.ActionResult) {
	if res.Error == domain.ErrNotYourTurn.Error() {
		fmt.Fprintln(r.Output, tui.System("Not your turn. %s is acting.", res.TurnState.Current()))
		return
	}
	r.narrate(res.Narrative)
	for _, c := range res.Directives {
		fmt.Fprintln(r.Output, tui.FormatCheck(r.Profile, c))
	}
	for _, c := range res.CluesDiscovered {
		fmt.Fprintln(r.Output, tui.System("Clue found: %s", c.Description))
	}
	for _, a := range res.NPCActions {
		fmt.Fprintln(r.Output, tui.System("%s: %s", a.NPCID, a.Action))
	}
	if res.Continuation != nil {
		r.narrate(*res.Continuation)
	}
	if res.Ending != "" {
		fmt.Fprintln(r.Output, tui.System("Ending reached: %s", res.Ending))
	}
}

func (r *Runner) narrate(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	out, err := r.Renderer(text)
	if err != nil {
		out = text
	}
	fmt.Fprintln(r.Output, strings.TrimSpace(out))
}

func (r *Runner) status(snap *domain.Snapshot) {
	fmt.Fprintf(r.Output, "Phase: %s\n", snap.Phase)
	if snap.Phase == phase.Combat && snap.Turn != nil {
		fmt.Fprintf(r.Output, "Round %d, acting: %s\n", snap.Turn.Round, snap.Turn.Current())
	}
	for _, a := range snap.Party() {
		names := make([]string, 0, len(a.Resources))
		for name := range a.Resources {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			res := a.Resources[name]
			parts = append(parts, fmt.Sprintf("%s %d/%d", strings.ToUpper(name), res.Current, res.Max))
		}
		fmt.Fprintf(r.Output, "  %s (%s): %s\n", a.Name, a.ID, strings.Join(parts, "  "))
	}
	if len(snap.DiscoveredClues) > 0 {
		fmt.Fprintf(r.Output, "Clues: %s\n", strings.Join(snap.DiscoveredClues, ", "))
	}
}

func firstPlayer(snap *domain.Snapshot) string {
	for _, a := range snap.Party() {
		if !a.IsNPC {
			return a.ID
		}
	}
	return ""
}

func phaseNames(ps []phase.Phase) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
