package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	thoughtRe = regexp.MustCompile(`(?s)Thought:\s*(.*?)(?:\n\s*(?:Action|Answer):|$)`)
	actionRe  = regexp.MustCompile(`(?s)Action:\s*([^\n]+?)\s*\n\s*Action Input:\s*(.*)`)
	answerRe  = regexp.MustCompile(`(?s)Answer:\s*(.*)`)
)

type reasoning struct {
	thought string
	action  string
	input   string
	answer  string
	final   bool
}

// parseReasoning reads one model turn. An action wins over an answer that
// appears after it; text with neither marker is taken as the final answer.
func parseReasoning(text string) reasoning {
	text = strings.TrimSpace(text)
	var r reasoning
	if m := thoughtRe.FindStringSubmatch(text); m != nil {
		r.thought = strings.TrimSpace(m[1])
	}

	actionLoc := actionRe.FindStringSubmatchIndex(text)
	answerLoc := answerRe.FindStringSubmatchIndex(text)

	if actionLoc != nil && (answerLoc == nil || actionLoc[0] < answerLoc[0]) {
		r.action = strings.Trim(strings.TrimSpace(text[actionLoc[2]:actionLoc[3]]), "`\"'")
		input := text[actionLoc[4]:actionLoc[5]]
		if i := strings.Index(input, "Observation:"); i >= 0 {
			input = input[:i]
		}
		r.input = strings.TrimSpace(input)
		return r
	}

	r.final = true
	if answerLoc != nil {
		r.answer = strings.TrimSpace(text[answerLoc[2]:answerLoc[3]])
		return r
	}
	r.answer = text
	return r
}

// toolInput unwraps {"input": "..."} and passes anything else through.
func toolInput(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	var kwargs map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &kwargs); err != nil || len(kwargs) != 1 {
		return trimmed
	}
	if v, ok := kwargs["input"].(string); ok {
		return v
	}
	return trimmed
}
