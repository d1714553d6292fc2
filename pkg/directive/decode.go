package directive

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/keeper/pkg/dice"
	"github.com/aretw0/keeper/pkg/turn"
	"github.com/mitchellh/mapstructure"
)

// ErrInvalid is wrapped by every DecodeError.
var ErrInvalid = errors.New("invalid directive")

// DecodeError reports why one directive of a batch was rejected.
type DecodeError struct {
	Index int
	Kind  string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("directive %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("directive %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode turns one raw directive into a typed Directive. Unknown fields are
// ignored and scalar fields are weakly typed ("2" decodes into an int).
func Decode(raw Raw) (Directive, error) {
	kind, err := kindOf(raw)
	if err != nil {
		return nil, err
	}

	var d Directive
	switch kind {
	case KindSkillCheck:
		v := SkillCheck{Difficulty: dice.Regular}
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		if v.Skill == "" {
			return nil, missing("skill")
		}
		diff, err := dice.ParseDifficulty(string(v.Difficulty))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		v.Difficulty = diff
		d = v

	case KindSanityCheck:
		v := SanityCheck{LossOnSuccess: "0"}
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		if v.LossOnFailure == "" {
			return nil, missing("san_loss_failure")
		}
		if v.LossOnSuccess == "" {
			v.LossOnSuccess = "0"
		}
		for _, f := range []string{v.LossOnSuccess, v.LossOnFailure} {
			if _, err := dice.ParseFormula(f); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
			}
		}
		d = v

	case KindClueDiscovered:
		var v ClueDiscovered
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		if v.ClueID == "" {
			return nil, missing("clue_id")
		}
		d = v

	case KindModeSwitch:
		var v ModeSwitch
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		v.Mode = turn.Mode(strings.ToLower(string(v.Mode)))
		switch v.Mode {
		case "":
			return nil, missing("mode")
		case turn.Combat, turn.Exploration:
		default:
			return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalid, v.Mode)
		}
		d = v

	case KindSwitchCharacter:
		var v SwitchCharacter
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		if v.NextCharacterID == "" {
			return nil, missing("next_character_id")
		}
		d = v

	case KindGrantExtraAction:
		v := GrantExtraAction{ActionCount: 1}
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		if v.Target() == "" {
			return nil, missing("target_character")
		}
		if v.ActionCount <= 0 {
			return nil, fmt.Errorf("%w: action_count must be positive, got %d", ErrInvalid, v.ActionCount)
		}
		d = v
	}
	return d, nil
}

// DecodeBatch decodes every directive of a batch. Failures are reported per
// index and never prevent the remaining directives from decoding.
func DecodeBatch(batch []Raw) ([]Directive, []*DecodeError) {
	var (
		out  []Directive
		errs []*DecodeError
	)
	for i, raw := range batch {
		d, err := Decode(raw)
		if err != nil {
			errs = append(errs, &DecodeError{Index: i, Kind: TypeOf(raw), Err: err})
			continue
		}
		out = append(out, d)
	}
	return out, errs
}

// TypeOf returns the raw discriminator, or "" if absent.
func TypeOf(raw Raw) string {
	s, _ := raw["type"].(string)
	return s
}

func kindOf(raw Raw) (Kind, error) {
	t := strings.ToLower(strings.TrimSpace(TypeOf(raw)))
	if t == "" {
		return "", missing("type")
	}
	if k, ok := aliases[t]; ok {
		return k, nil
	}
	switch k := Kind(t); k {
	case KindSkillCheck, KindSanityCheck, KindClueDiscovered, KindModeSwitch, KindSwitchCharacter, KindGrantExtraAction:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrInvalid, t)
}

func decodeInto(raw Raw, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(raw)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: missing required field %q", ErrInvalid, field)
}
