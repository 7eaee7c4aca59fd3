package workflow

import (
	"strings"
)

// Verdict is the resolution meaning of a user reply.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictNone    Verdict = ""
)

// Resolution replies are classified against a fixed lexicon, a pure
// function with no model call, so approval latency and behavior stay
// deterministic. Anything outside both sets is ignored and leaves the
// proposal pending.
var approveWords = map[string]bool{
	"y":    true,
	"yes":  true,
	"yeah": true,
	"sure": true,
	"👍":    true,
}

var rejectWords = map[string]bool{
	"n":   true,
	"no":  true,
	"nah": true,
}

// ClassifyReply maps a free-form reply onto a resolution verdict.
func ClassifyReply(text string) Verdict {
	word := strings.ToLower(strings.TrimSpace(text))
	if approveWords[word] {
		return VerdictApprove
	}
	if rejectWords[word] {
		return VerdictReject
	}
	return VerdictNone
}
