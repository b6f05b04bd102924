package parse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeContent(t *testing.T, s string) Content {
	t.Helper()
	var c Content
	require.NoError(t, json.Unmarshal([]byte(s), &c))
	return c
}

func TestContentFlatten(t *testing.T) {
	tests := []struct {
		name  string
		input string
		shape ContentShape
		want  string
	}{
		{"plain string", `"hello\nworld"`, ShapeString, "hello\nworld"},
		{"null", `null`, ShapeNone, ""},
		{"text parts", `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, ShapeList, "a\nb"},
		{
			"tool parts contribute nothing",
			`[{"type":"text","text":"run it"},{"type":"tool_use","id":"x","name":"Bash","input":{}},{"type":"tool_result","tool_use_id":"y","content":"out"}]`,
			ShapeList, "run it",
		},
		{"bare strings in list", `["a",{"type":"text","text":"b"},"c"]`, ShapeList, "a\nb\nc"},
		{"text part without text", `[{"type":"text"},{"type":"text","text":"b"}]`, ShapeList, "b"},
		{"unknown parts skipped", `[{"type":"image","source":{}},{"type":"thinking","thinking":"hmm"}]`, ShapeList, ""},
		{"other shape stringified", `{"k":1}`, ShapeOther, `{"k":1}`},
		{"number stringified", `42`, ShapeOther, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := decodeContent(t, tt.input)
			assert.Equal(t, tt.shape, c.Shape)
			assert.Equal(t, tt.want, c.Flatten())
		})
	}
}

func TestContentToolParts(t *testing.T) {
	c := decodeContent(t, `[
		{"type":"tool_use","id":"x","name":"Bash","input":{"command":"ls"}},
		{"type":"tool_result","tool_use_id":"w","content":[{"type":"text","text":"file1"},{"type":"text","text":"file2"}],"is_error":true}
	]`)

	invs := c.Invocations()
	require.Len(t, invs, 1)
	assert.Equal(t, "x", invs[0].ID)
	assert.Equal(t, "Bash", invs[0].Name)
	assert.JSONEq(t, `{"command":"ls"}`, string(invs[0].Input))

	res := c.Results()
	require.Len(t, res, 1)
	assert.Equal(t, "w", res[0].ToolUseID)
	assert.True(t, res[0].IsError)
	assert.Equal(t, "file1\nfile2", res[0].Content.Flatten())
}
