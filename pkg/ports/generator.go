package ports

import (
	"context"

	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/turn"
)

// Step identifies which round-trip of an action a generation belongs to.
type Step string

const (
	// StepOpening produces the scenario introduction.
	StepOpening Step = "opening"
	// StepAction answers a player's action and may emit directives.
	StepAction Step = "action"
	// StepContinuation folds resolved check outcomes back into the story.
	StepContinuation Step = "continuation"
)

// GenerateRequest carries everything a generator needs to produce one reply.
type GenerateRequest struct {
	SessionID string
	Step      Step
	// Input is the player's action, or the outcome summary on continuation.
	Input string
	// Brief is the scenario and party context.
	Brief string
	// Progress is the plot progress prompt.
	Progress string
	History  []domain.Message
	Turn     turn.State
}

// Generation is the raw reply of a generator.
type Generation struct {
	Text  string
	Usage domain.Usage
}

// Generator is the external, nondeterministic narrative generator.
// Implementations must honor ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Generation, error)
}
