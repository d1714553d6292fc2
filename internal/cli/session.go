package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/ports"
	"github.com/aretw0/keeper/pkg/session"
	"gopkg.in/yaml.v3"
)

// ListSessions writes one session id per line.
func ListSessions(ctx context.Context, w io.Writer, store ports.StateStore) error {
	ids, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("error listing sessions: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return nil
	}
	fmt.Fprintln(w, "Sessions:")
	for _, id := range ids {
		snap, err := store.Load(ctx, id)
		if err != nil {
			fmt.Fprintf(w, "- %s (unreadable: %v)\n", id, err)
			continue
		}
		fmt.Fprintf(w, "- %s  %s  %s  v%d  %s\n", id, snap.ScenarioID, snap.Phase, snap.Version, snap.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// InspectSession pretty prints a snapshot as JSON or YAML.
func InspectSession(ctx context.Context, w io.Writer, store ports.StateStore, id, format string) error {
	snap, err := store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("error loading session '%s': %w", id, err)
	}
	switch format {
	case "yaml":
		// Round-trip through JSON so YAML keys match the wire names.
		raw, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	case "", "json":
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshaling session: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// RemoveSessions deletes every id, reporting each result.
func RemoveSessions(ctx context.Context, w io.Writer, store ports.StateStore, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := store.Delete(ctx, id); err != nil {
			fmt.Fprintf(w, "Error removing '%s': %v\n", id, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "Removed session '%s'\n", id)
	}
	return errors.Join(errs...)
}

// LoadRoster reads investigators from a JSON or YAML file.
func LoadRoster(data []byte) ([]*domain.Actor, error) {
	var doc struct {
		Characters []*domain.Actor `json:"characters" yaml:"characters"`
	}
	// YAML is a superset of JSON; decoding through a generic value keeps the
	// json tags authoritative.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if len(doc.Characters) == 0 {
		return nil, fmt.Errorf("roster has no characters")
	}
	for _, a := range doc.Characters {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	return doc.Characters, nil
}

// LoadOrCreate returns the session id to play, creating it from the roster
// when it does not exist yet.
func LoadOrCreate(ctx context.Context, m *session.Manager, id, scenarioID string, roster []*domain.Actor) (string, bool, error) {
	if id != "" {
		if _, err := m.Get(ctx, id); err == nil {
			return id, true, nil
		} else if !errors.Is(err, domain.ErrSessionNotFound) {
			return "", false, err
		}
	}
	if len(roster) == 0 {
		return "", false, fmt.Errorf("session %q does not exist and no roster was given", id)
	}
	snap, err := m.Create(ctx, id, scenarioID, roster)
	if err != nil {
		return "", false, err
	}
	return snap.SessionID, false, nil
}
