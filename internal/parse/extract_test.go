package parse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMessageTokens(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{
		"role":"assistant",
		"content":[{"type":"text","text":"done"}],
		"usage":{"input_tokens":10,"output_tokens":20,"cache_read_input_tokens":0,
			"cache_creation":{"ephemeral_1h_input_tokens":7}}
	}`), &msg))

	row := ExtractMessage("s1", 3, Record{Kind: KindMessage, Timestamp: "t", Message: &msg})
	assert.Equal(t, "s1", row.SessionID)
	assert.Equal(t, 3, row.Index)
	assert.Equal(t, "assistant", row.Role)
	assert.Equal(t, "done", row.Content)
	assert.Equal(t, "t", row.Timestamp)

	require.NotNil(t, row.Tokens.Input)
	assert.EqualValues(t, 10, *row.Tokens.Input)
	require.NotNil(t, row.Tokens.Output)
	assert.EqualValues(t, 20, *row.Tokens.Output)
	require.NotNil(t, row.Tokens.CacheRead)
	assert.EqualValues(t, 0, *row.Tokens.CacheRead)
	assert.Nil(t, row.Tokens.CacheCreation)
	assert.Nil(t, row.Tokens.CacheEphemeral5m)
	require.NotNil(t, row.Tokens.CacheEphemeral1h)
	assert.EqualValues(t, 7, *row.Tokens.CacheEphemeral1h)
}

func TestExtractMessageUserHasNoTokens(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":"hi","usage":{"input_tokens":5}}`), &msg))
	row := ExtractMessage("s1", 0, Record{Kind: KindMessage, Message: &msg})
	assert.Equal(t, TokenCounts{}, row.Tokens)
}

func TestExtractToolUse(t *testing.T) {
	inv := ToolInvocationPart{ID: "x", Name: "Bash", Input: json.RawMessage(`{ "command" : "ls" }`)}

	row := ExtractToolUse("s1", 1, "t1", inv, nil)
	assert.Equal(t, "x", row.ToolUseID)
	assert.Equal(t, "Bash", row.ToolName)
	require.NotNil(t, row.ToolInput)
	assert.Equal(t, `{"command":"ls"}`, *row.ToolInput)
	assert.Nil(t, row.ToolResult)
	assert.False(t, row.IsError)

	var res ToolResultPart
	res.ToolUseID = "x"
	require.NoError(t, json.Unmarshal([]byte(`"file1\nfile2"`), &res.Content))
	res.IsError = true
	row = ExtractToolUse("s1", 1, "t1", inv, &res)
	require.NotNil(t, row.ToolResult)
	assert.Equal(t, "file1\nfile2", *row.ToolResult)
	assert.True(t, row.IsError)
}

func TestSerializeInputEmpty(t *testing.T) {
	for _, in := range []string{"", "null", "{}", " { } ", "[]", `""`} {
		assert.Nil(t, SerializeInput(json.RawMessage(in)), "input %q", in)
	}
	got := SerializeInput(json.RawMessage(`{"b":1,"a":[1, 2]}`))
	require.NotNil(t, got)
	assert.Equal(t, `{"b":1,"a":[1,2]}`, *got)
}

func TestDecodeProjectName(t *testing.T) {
	assert.Equal(t, "/Users/me/dev/app", DecodeProjectName("-Users-me-dev-app"))
	assert.Equal(t, "plain", DecodeProjectName("plain"))
	assert.Equal(t, "abc-123", SessionIDFromPath("/x/y/abc-123.jsonl"))
}
