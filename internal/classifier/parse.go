package classifier

import (
	"regexp"
	"strings"
)

// Verdict grammar: `ACTION|category: content` with the category optional,
// e.g. `UPDATE|decision: ship the v2 API on Friday`. ROUTE content may name
// its target as `<@U123> | summary`.
var verdictRe = regexp.MustCompile(`(?s)^(\w+)\|(\w+):\s*(.*)$`)

// ParseVerdict turns raw model output into an Action. Anything that does
// not match a known action type parses as PASS: a malformed verdict is a
// missed nudge, never an error.
func ParseVerdict(raw string) Action {
	raw = strings.TrimSpace(raw)

	action := Action{Category: "general"}
	var content string

	if m := verdictRe.FindStringSubmatch(raw); m != nil {
		action.Type = ActionType(strings.ToUpper(m[1]))
		action.Category = m[2]
		content = strings.TrimSpace(m[3])
	} else if head, rest, ok := strings.Cut(raw, ":"); ok {
		action.Type = ActionType(strings.ToUpper(strings.TrimSpace(head)))
		content = strings.TrimSpace(rest)
	} else {
		action.Type = ActionType(strings.ToUpper(raw))
	}

	switch action.Type {
	case ActionPass:
		return Pass
	case ActionRoute:
		target, summary, ok := strings.Cut(content, "|")
		action.Target = strings.TrimSpace(target)
		if ok {
			action.Text = strings.TrimSpace(summary)
		} else {
			action.Text = "could use your help here"
		}
		return action
	case ActionUpdate, ActionQuestion, ActionMisalign:
		action.Text = content
		return action
	default:
		return Pass
	}
}
