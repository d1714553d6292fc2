package llm

import (
	"fmt"
	"strings"

	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/ports"
	"github.com/aretw0/keeper/pkg/turn"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// SystemPrompt is the keeper persona and the reply contract.
const SystemPrompt = `You are an experienced Keeper of Arcane Lore running a Call of Cthulhu 7th edition session. Your duties:
1. Run the scenario and build a creeping sense of horror.
2. Play the NPCs and move the plot forward.
3. Describe scenes and events and answer the investigators' actions.
4. Request checks when the rules call for them. You never roll dice yourself.
5. Mark discovered clues with clue_discovered when investigators learn key information.

Always reply with one JSON object:
{
  "narrative": "your narration",
  "game_directives": [
    {"type": "skill_check", "skill": "Skill name", "difficulty": "regular|hard|extreme", "bonus_dice": 0, "reason": "why"},
    {"type": "sanity_check", "san_loss_success": "0", "san_loss_failure": "1d6", "reason": "why"},
    {"type": "clue_discovered", "clue_id": "clue id", "reason": "how"},
    {"type": "mode_switch", "mode": "exploration|combat", "reason": "why"},
    {"type": "switch_character", "next_character_id": "id", "reason": "why"},
    {"type": "grant_extra_action", "target_character": "id", "action_count": 1, "reason": "why"}
  ],
  "npc_actions": [
    {"npc_id": "npc id", "action": "dialogue|move|attack", "content": "what happens"}
  ],
  "atmosphere": "calm|tense|tension_rising|horror|panic"
}

Rules:
- You narrate; the system resolves rules. Ask for rolls through game_directives.
- Never put dice results in the narrative. Wait for the system to report them.
- game_directives and npc_actions may be empty arrays.
- clue_id must be one of the ids in the clue catalog.`

// OpeningPrompt asks for the scenario introduction.
const OpeningPrompt = `[System] The game begins. Introduce the scenario as the Keeper:
1. Describe the background and the opening scene.
2. Set the mood and draw the players into their characters.
3. Hint at the first actions the investigators could take.
Do not request any checks; this is a pure narrative opening.`

// ContinuationSuffix follows the check summary on the continuation call.
const ContinuationSuffix = "\nContinue the story from these results. Do not request new checks for the same action."

// BuildMessages lays out the prompt: persona, scenario brief, plot progress,
// turn status, the history window and finally the current input.
func BuildMessages(req ports.GenerateRequest) []llms.MessageContent {
	msgs := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, SystemPrompt),
	}
	if req.Brief != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, req.Brief))
	}
	if req.Progress != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, req.Progress))
	}
	if status := turnStatus(req.Turn); status != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, status))
	}

	for _, m := range req.History {
		msgs = append(msgs, llms.TextParts(roleType(m.Role), m.Content))
	}

	var input string
	switch req.Step {
	case ports.StepOpening:
		input = OpeningPrompt
	case ports.StepContinuation:
		input = req.Input + ContinuationSuffix
	default:
		input = req.Input
	}
	return append(msgs, llms.TextParts(schema.ChatMessageTypeHuman, input))
}

func roleType(r domain.Role) schema.ChatMessageType {
	switch r {
	case domain.RoleSystem:
		return schema.ChatMessageTypeSystem
	case domain.RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}

func turnStatus(s turn.State) string {
	if s.Mode != turn.Combat || s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		return ""
	}
	current := s.Queue[s.CurrentIndex]
	return fmt.Sprintf("[Combat] Round %d. Initiative order: %s. Acting now: %s.",
		s.Round, strings.Join(s.Queue, ", "), current)
}
