package domain

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/keeper/pkg/phase"
)

// EncodeSnapshot serializes s as JSON.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot parses and validates a persisted snapshot. A snapshot without
// turn_state resumes in exploration. Any parse or invariant failure wraps
// ErrCorruptSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.normalize()
	return &s, nil
}

// Validate checks the invariants a snapshot must satisfy to be resumed.
func (s *Snapshot) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("%w: missing session_id", ErrCorruptSnapshot)
	}
	if _, err := phase.Parse(string(s.Phase)); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	for id, a := range s.Actors {
		if a == nil {
			return fmt.Errorf("%w: actor %s is null", ErrCorruptSnapshot, id)
		}
		if a.ID != id {
			return fmt.Errorf("%w: actor key %s holds id %s", ErrCorruptSnapshot, id, a.ID)
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
	}
	if s.Turn != nil {
		if err := s.Turn.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
	}
	return nil
}
