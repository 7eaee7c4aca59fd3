package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyReply(t *testing.T) {
	t.Run("approve words", func(t *testing.T) {
		for _, text := range []string{"y", "yes", "yeah", "sure", "👍", "Yes", " YES ", "Sure"} {
			assert.Equal(t, VerdictApprove, ClassifyReply(text), "text=%q", text)
		}
	})

	t.Run("reject words", func(t *testing.T) {
		for _, text := range []string{"n", "no", "nah", "No", " NO "} {
			assert.Equal(t, VerdictReject, ClassifyReply(text), "text=%q", text)
		}
	})

	t.Run("everything else carries no verdict", func(t *testing.T) {
		for _, text := range []string{"", "maybe", "ok", "yes please", "not yet", "nope", "definitely", "y u no"} {
			assert.Equal(t, VerdictNone, ClassifyReply(text), "text=%q", text)
		}
	})
}
