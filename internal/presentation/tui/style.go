package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/keeper/internal/runtime"
	"github.com/muesli/termenv"
)

var tierColors = map[string]string{
	"critical_success": "#facc15",
	"extreme_success":  "#4ade80",
	"hard_success":     "#22c55e",
	"regular_success":  "#16a34a",
	"failure":          "#f87171",
	"fumble":           "#b91c1c",
}

// Tier colors a tier wire name.
func Tier(profile termenv.Profile, tier string) termenv.Style {
	s := termenv.String(strings.ReplaceAll(tier, "_", " "))
	if c, ok := tierColors[tier]; ok {
		s = s.Foreground(profile.Color(c))
	}
	return s.Bold()
}

// FormatCheck renders one resolved check as a single line.
func FormatCheck(profile termenv.Profile, c runtime.CheckOutcome) string {
	switch c.Type {
	case "skill_check":
		line := fmt.Sprintf("%v %v/%v  %s", c.Details["skill"], c.Details["roll"], c.Details["target"],
			Tier(profile, fmt.Sprint(c.Details["result"])))
		if push, _ := c.Details["can_push"].(bool); push {
			line += termenv.String("  (/push to try again)").Faint().String()
		}
		return line
	case "sanity_check":
		tier := "failure"
		if ok, _ := c.Details["success"].(bool); ok {
			tier = "regular_success"
		}
		line := fmt.Sprintf("SAN %v/%v  %s  -%v (now %v)", c.Details["roll"], c.Details["current_san"],
			Tier(profile, tier), c.Details["san_lost"], c.Details["new_san"])
		if m, _ := c.Details["madness"].(string); m != "" {
			line += "  " + termenv.String(m).Foreground(profile.Color(tierColors["fumble"])).String()
		}
		return line
	default:
		return c.Description
	}
}

// System formats a message from the program rather than the story.
func System(format string, args ...any) string {
	return termenv.String(">>> " + fmt.Sprintf(format, args...)).Faint().String()
}
