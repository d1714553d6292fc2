// Package scripted provides a deterministic narrative generator driven by a
// YAML script. It powers offline play and end-to-end tests.
package scripted

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/ports"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultScript []byte

// Reply answers every action whose input matches Match.
type Reply struct {
	Match string `yaml:"match"`
	Text  string `yaml:"text"`

	re *regexp.Regexp
}

// Script is the YAML document read by the generator.
type Script struct {
	Opening      string  `yaml:"opening"`
	Continuation string  `yaml:"continuation"`
	Fallback     string  `yaml:"fallback"`
	Replies      []Reply `yaml:"replies"`
}

// Parse decodes and compiles a script.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	for i := range s.Replies {
		r := &s.Replies[i]
		if r.Match == "" {
			return nil, fmt.Errorf("reply %d: match is required", i)
		}
		re, err := regexp.Compile("(?i)" + r.Match)
		if err != nil {
			return nil, fmt.Errorf("reply %d: %w", i, err)
		}
		r.re = re
	}
	if s.Fallback == "" {
		s.Fallback = "The Keeper waits for you to continue."
	}
	if s.Continuation == "" {
		s.Continuation = "The dice have spoken. The story moves on."
	}
	return &s, nil
}

// Load reads a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in script for the bundled scenario.
func Default() *Script {
	s, err := Parse(defaultScript)
	if err != nil {
		panic(err)
	}
	return s
}

// Generator implements ports.Generator from a Script. It is stateless and
// safe for concurrent use.
type Generator struct {
	script *Script
}

// New creates a Generator. A nil script uses Default.
func New(script *Script) *Generator {
	if script == nil {
		script = Default()
	}
	return &Generator{script: script}
}

// Generate picks the reply for the request.
func (g *Generator) Generate(ctx context.Context, req ports.GenerateRequest) (ports.Generation, error) {
	if err := ctx.Err(); err != nil {
		return ports.Generation{}, err
	}
	text := g.reply(req)
	return ports.Generation{
		Text: text,
		Usage: domain.Usage{
			PromptTokens:     len(strings.Fields(req.Input)),
			CompletionTokens: len(strings.Fields(text)),
			Calls:            1,
		},
	}, nil
}

func (g *Generator) reply(req ports.GenerateRequest) string {
	switch req.Step {
	case ports.StepOpening:
		return g.script.Opening
	case ports.StepContinuation:
		return g.script.Continuation
	}
	for _, r := range g.script.Replies {
		if r.re.MatchString(req.Input) {
			return r.Text
		}
	}
	return g.script.Fallback
}
