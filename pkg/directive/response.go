package directive

import (
	"encoding/json"
	"regexp"
	"strings"
)

// DefaultAtmosphere is used when the generator omits the atmosphere tag.
const DefaultAtmosphere = "calm"

// NPCAction is an NPC beat proposed by the generator. It is passed through to
// the caller untouched.
type NPCAction struct {
	NPCID   string `json:"npc_id"`
	Action  string `json:"action"`
	Content string `json:"content,omitempty"`
}

// Response is a parsed generator reply.
type Response struct {
	Narrative  string      `json:"narrative"`
	Directives []Raw       `json:"game_directives"`
	NPCActions []NPCAction `json:"npc_actions"`
	Atmosphere string      `json:"atmosphere"`

	// Structured is false when no JSON object could be read and the whole
	// reply became the narrative.
	Structured bool   `json:"-"`
	Raw        string `json:"-"`
}

var (
	fencedJSON    = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	narrativeJSON = regexp.MustCompile(`(?s)\{[^{}]*"narrative"[^{}]*\}`)
)

// ParseResponse reads a generator reply. It looks for a JSON object in a
// fenced code block, then for a flat object carrying "narrative", then for
// the first balanced brace pair. If none decodes, the trimmed text is the
// narrative and no directives are returned.
//
// Fields are decoded one at a time so a wrongly typed field or directive
// element never discards the rest of the reply. A directive element that is
// not an object is kept as an empty Raw so the executor reports it dropped
// at its original index.
func ParseResponse(text string) Response {
	if candidate, ok := extractJSON(text); ok {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &fields); err == nil && fields != nil {
			resp := decodeFields(fields)
			resp.Structured = true
			resp.Raw = text
			return resp
		}
	}
	return Response{
		Narrative:  strings.TrimSpace(text),
		Atmosphere: DefaultAtmosphere,
		Raw:        text,
	}
}

func decodeFields(fields map[string]json.RawMessage) Response {
	resp := Response{Atmosphere: DefaultAtmosphere}
	resp.Narrative = decodeString(fields["narrative"])
	if a := decodeString(fields["atmosphere"]); a != "" {
		resp.Atmosphere = a
	}

	for _, elem := range decodeArray(fields["game_directives"]) {
		var raw Raw
		if err := json.Unmarshal(elem, &raw); err != nil || raw == nil {
			raw = Raw{}
		}
		resp.Directives = append(resp.Directives, raw)
	}

	for _, elem := range decodeArray(fields["npc_actions"]) {
		var a NPCAction
		if err := json.Unmarshal(elem, &a); err != nil {
			continue
		}
		resp.NPCActions = append(resp.NPCActions, a)
	}
	return resp
}

// decodeString returns a JSON string value, or "" for anything else.
func decodeString(data json.RawMessage) string {
	var s string
	if len(data) == 0 || json.Unmarshal(data, &s) != nil {
		return ""
	}
	return s
}

func decodeArray(data json.RawMessage) []json.RawMessage {
	var elems []json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &elems) != nil {
		return nil
	}
	return elems
}

func extractJSON(text string) (string, bool) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := narrativeJSON.FindString(text); m != "" {
		return m, true
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
