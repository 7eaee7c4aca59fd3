package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVerdict(t *testing.T) {
	t.Run("parses update with category", func(t *testing.T) {
		action := ParseVerdict("UPDATE|decision: ship the v2 API on Friday")
		assert.Equal(t, ActionUpdate, action.Type)
		assert.Equal(t, "decision", action.Category)
		assert.Equal(t, "ship the v2 API on Friday", action.Text)
	})

	t.Run("parses route with target and summary", func(t *testing.T) {
		action := ParseVerdict("ROUTE|blocker: <@U123> | is blocked on the deploy pipeline.")
		assert.Equal(t, ActionRoute, action.Type)
		assert.Equal(t, "blocker", action.Category)
		assert.Equal(t, "<@U123>", action.Target)
		assert.Equal(t, "is blocked on the deploy pipeline.", action.Text)
	})

	t.Run("route without summary gets a default", func(t *testing.T) {
		action := ParseVerdict("ROUTE: <@U123>")
		assert.Equal(t, ActionRoute, action.Type)
		assert.Equal(t, "<@U123>", action.Target)
		assert.NotEmpty(t, action.Text)
	})

	t.Run("category defaults to general without the pipe form", func(t *testing.T) {
		action := ParseVerdict("QUESTION: what does done mean here?")
		assert.Equal(t, ActionQuestion, action.Type)
		assert.Equal(t, "general", action.Category)
		assert.Equal(t, "what does done mean here?", action.Text)
	})

	t.Run("misalign parses", func(t *testing.T) {
		action := ParseVerdict("MISALIGN|scope: this contradicts the Q3 objective")
		assert.Equal(t, ActionMisalign, action.Type)
		assert.Equal(t, "this contradicts the Q3 objective", action.Text)
	})

	t.Run("bare pass", func(t *testing.T) {
		assert.Equal(t, Pass, ParseVerdict("PASS"))
		assert.Equal(t, Pass, ParseVerdict("pass"))
		assert.Equal(t, Pass, ParseVerdict("PASS: nothing to do"))
	})

	t.Run("malformed output degrades to pass", func(t *testing.T) {
		assert.Equal(t, Pass, ParseVerdict("I think this message is fine."))
		assert.Equal(t, Pass, ParseVerdict(""))
		assert.Equal(t, Pass, ParseVerdict("SHRUG|general: no such action"))
	})

	t.Run("multiline content survives", func(t *testing.T) {
		action := ParseVerdict("UPDATE|decision: line one\nline two")
		assert.Equal(t, ActionUpdate, action.Type)
		assert.Equal(t, "line one\nline two", action.Text)
	})
}
