package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Zuo-Peng/cc-analytics/internal/index"
)

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"async", "error"}, queryTerms("async AND error"))
	assert.Equal(t, []string{"data", "promise", "rejection"}, queryTerms(`data* "promise rejection"`))
	assert.Equal(t, []string{"user", "bug"}, queryTerms("role:user NOT bug"))
}

func TestHighlightKeywords(t *testing.T) {
	got := highlightKeywords("Error: error", "error")
	assert.Equal(t, colorBoldRed+"Error"+colorReset+": "+colorBoldRed+"error"+colorReset, got)
	assert.Equal(t, "plain", highlightKeywords("plain", "AND"))
}

func TestWrapLine(t *testing.T) {
	assert.Equal(t, []string{"abcd", "ef"}, wrapLine("abcdef", 4))
	assert.Equal(t, []string{"中文", "字"}, wrapLine("中文字", 4))
	assert.Equal(t, []string{"\033[1mab", "c\033[0m"}, wrapLine("\033[1mabc\033[0m", 2))
	assert.Equal(t, []string{""}, wrapLine("", 4))
}

func TestContext(t *testing.T) {
	msgs := []index.StoredMessage{
		{Index: 3, Role: "user", Content: "why does it fail", Timestamp: "t3"},
		{Index: 4, Role: "assistant", Content: "line one\nline two", Timestamp: "t4"},
	}
	out := Context(msgs, 4, Options{})
	assert.Equal(t, strings.Join([]string{
		"  [3] USER t3",
		"    why does it fail",
		">> [4] ASSISTANT t4",
		"    line one",
		"    line two",
		"",
	}, "\n"), out)

	out = Context(msgs[:1], 3, Options{MaxChars: 3})
	assert.Contains(t, out, "    why...")

	out = Context(msgs[:1], 0, Options{Color: true, Query: "fail"})
	assert.Contains(t, out, colorBoldRed+"fail"+colorReset)
}
