// Package directive defines the structured instructions a narrative generator
// emits alongside its prose, and the decoding of untrusted generator payloads
// into them.
package directive

import (
	"github.com/aretw0/keeper/pkg/dice"
	"github.com/aretw0/keeper/pkg/turn"
)

// Kind is the directive discriminator carried in the "type" field.
type Kind string

const (
	KindSkillCheck       Kind = "skill_check"
	KindSanityCheck      Kind = "sanity_check"
	KindClueDiscovered   Kind = "clue_discovered"
	KindModeSwitch       Kind = "mode_switch"
	KindSwitchCharacter  Kind = "switch_character"
	KindGrantExtraAction Kind = "grant_extra_action"
)

// aliases maps legacy discriminators to their canonical kind.
var aliases = map[string]Kind{
	"san_check": KindSanityCheck,
}

// Raw is an undecoded directive as received from the generator.
type Raw map[string]any

// Directive is one decoded instruction. The set of implementations is closed.
type Directive interface {
	Kind() Kind
	sealed()
}

// SkillCheck asks the acting actor to roll against a skill.
type SkillCheck struct {
	Skill      string          `mapstructure:"skill"`
	Difficulty dice.Difficulty `mapstructure:"difficulty"`
	BonusDice  int             `mapstructure:"bonus_dice"`
	Reason     string          `mapstructure:"reason"`
}

// SanityCheck asks the acting actor to roll against sanity.
type SanityCheck struct {
	LossOnSuccess string `mapstructure:"san_loss_success"`
	LossOnFailure string `mapstructure:"san_loss_failure"`
	Reason        string `mapstructure:"reason"`
}

// ClueDiscovered marks a scenario clue as found.
type ClueDiscovered struct {
	ClueID string `mapstructure:"clue_id"`
	Reason string `mapstructure:"reason"`
}

// ModeSwitch requests a turn mode change.
type ModeSwitch struct {
	Mode   turn.Mode `mapstructure:"mode"`
	Reason string    `mapstructure:"reason"`
}

// SwitchCharacter hands exploration control to another actor.
type SwitchCharacter struct {
	NextCharacterID string `mapstructure:"next_character_id"`
	Reason          string `mapstructure:"reason"`
}

// GrantExtraAction gives an actor additional actions.
type GrantExtraAction struct {
	TargetCharacter string `mapstructure:"target_character"`
	NextCharacterID string `mapstructure:"next_character_id"`
	ActionCount     int    `mapstructure:"action_count"`
	Reason          string `mapstructure:"reason"`
}

// Target returns the actor receiving the grant. next_character_id is
// accepted when target_character is absent.
func (g GrantExtraAction) Target() string {
	if g.TargetCharacter != "" {
		return g.TargetCharacter
	}
	return g.NextCharacterID
}

func (SkillCheck) Kind() Kind       { return KindSkillCheck }
func (SanityCheck) Kind() Kind      { return KindSanityCheck }
func (ClueDiscovered) Kind() Kind   { return KindClueDiscovered }
func (ModeSwitch) Kind() Kind       { return KindModeSwitch }
func (SwitchCharacter) Kind() Kind  { return KindSwitchCharacter }
func (GrantExtraAction) Kind() Kind { return KindGrantExtraAction }

func (SkillCheck) sealed()       {}
func (SanityCheck) sealed()      {}
func (ClueDiscovered) sealed()   {}
func (ModeSwitch) sealed()       {}
func (SwitchCharacter) sealed()  {}
func (GrantExtraAction) sealed() {}
