package research

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTextDirectField(t *testing.T) {
	for _, key := range []string{"research", "text", "content", "output"} {
		text, ok := ExtractText(map[string]any{key: "brief about the contact"})
		assert.True(t, ok, "key %s", key)
		assert.Equal(t, "brief about the contact", text)
	}
}

func TestExtractTextPrefersResearchOverText(t *testing.T) {
	text, ok := ExtractText(map[string]any{
		"research": "the research",
		"text":     "the text",
	})
	assert.True(t, ok)
	assert.Equal(t, "the research", text)
}

func TestExtractTextNestedWrapper(t *testing.T) {
	text, ok := ExtractText(map[string]any{
		"status": "done",
		"result": map[string]any{"content": "nested brief"},
	})
	assert.True(t, ok)
	assert.Equal(t, "nested brief", text)
}

func TestExtractTextLongestStringFallback(t *testing.T) {
	long := strings.Repeat("research prose ", 10)
	text, ok := ExtractText(map[string]any{
		"id":      "abc-123",
		"payload": map[string]any{"body": long},
	})
	assert.True(t, ok)
	assert.Equal(t, strings.TrimSpace(long), text)
}

func TestExtractTextFallbackRejectsShortStrings(t *testing.T) {
	_, ok := ExtractText(map[string]any{
		"id":     "abc-123",
		"status": "completed",
	})
	assert.False(t, ok)
}

func TestExtractTextIgnoresBlankFields(t *testing.T) {
	long := strings.Repeat("actual prose here ", 8)
	text, ok := ExtractText(map[string]any{
		"research": "   ",
		"data":     map[string]any{"text": long},
	})
	assert.True(t, ok)
	assert.Equal(t, strings.TrimSpace(long), text)
}

func TestExtractTextTrimsWhateverStrategyMatches(t *testing.T) {
	long := "  " + strings.Repeat("padded prose ", 10) + "  "
	text, ok := ExtractText(map[string]any{
		"id":   "abc-123",
		"blob": long,
	})
	assert.True(t, ok)
	assert.Equal(t, strings.TrimSpace(long), text)
}

func TestExtractTextEmptyPayload(t *testing.T) {
	_, ok := ExtractText(map[string]any{})
	assert.False(t, ok)
}

func TestExtractTextNonStringValues(t *testing.T) {
	_, ok := ExtractText(map[string]any{
		"research": 42,
		"text":     true,
		"content":  []any{"a", "b"},
	})
	assert.False(t, ok)
}
