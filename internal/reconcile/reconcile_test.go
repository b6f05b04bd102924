package reconcile

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/cc-analytics/internal/parse"
)

func msg(t *testing.T, ts, raw string) parse.Record {
	t.Helper()
	var m parse.Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return parse.Record{Kind: parse.KindMessage, Timestamp: ts, Message: &m}
}

func scenario(t *testing.T) []parse.Record {
	return []parse.Record{
		msg(t, "t0", `{"role":"user","content":"list files"}`),
		msg(t, "t1", `{"role":"assistant","content":[{"type":"text","text":"running"},{"type":"tool_use","id":"x","name":"Bash","input":{"command":"ls"}}]}`),
		msg(t, "t2", `{"role":"user","content":[{"type":"tool_result","tool_use_id":"x","content":"file1\nfile2"}]}`),
	}
}

func TestReconcileNewSession(t *testing.T) {
	d := Reconcile("s1", scenario(t), NewSession())

	assert.True(t, d.IsNew)
	assert.False(t, d.Empty())
	assert.False(t, d.Shrunk)
	require.Len(t, d.Messages, 3)
	for i, m := range d.Messages {
		assert.Equal(t, i, m.Index)
	}
	assert.Equal(t, "t0", d.StartTime)
	assert.Equal(t, "t2", d.EndTime)
	assert.Equal(t, 3, d.MessageCount)

	require.Len(t, d.ToolUses, 1)
	tu := d.ToolUses[0]
	assert.Equal(t, "x", tu.ToolUseID)
	assert.Equal(t, "Bash", tu.ToolName)
	assert.Equal(t, 1, tu.MessageIndex)
	assert.Equal(t, "t1", tu.Timestamp)
	require.NotNil(t, tu.ToolInput)
	assert.Equal(t, `{"command":"ls"}`, *tu.ToolInput)
	require.NotNil(t, tu.ToolResult)
	assert.Equal(t, "file1\nfile2", *tu.ToolResult)
	assert.False(t, tu.IsError)
	assert.Equal(t, 1, d.ToolUseCount)
}

func TestReconcileUpToDate(t *testing.T) {
	d := Reconcile("s1", scenario(t), Prior{Exists: true, MaxIndex: 2, ToolUseCount: 1})
	assert.False(t, d.IsNew)
	assert.True(t, d.Empty())
	assert.Empty(t, d.ToolUses)
	assert.Equal(t, 3, d.MessageCount)
	assert.Equal(t, 1, d.ToolUseCount)
}

func TestReconcileAppend(t *testing.T) {
	recs := scenario(t)
	recs = append(recs,
		msg(t, "t3", `{"role":"assistant","content":[{"type":"tool_use","id":"y","name":"Read","input":{"file_path":"a"}}]}`),
		msg(t, "t4", `{"role":"user","content":[{"type":"tool_result","tool_use_id":"y","content":[{"type":"text","text":"body"}],"is_error":true}]}`),
	)

	d := Reconcile("s1", recs, Prior{Exists: true, MaxIndex: 2, ToolUseCount: 1})
	require.Len(t, d.Messages, 2)
	assert.Equal(t, 3, d.Messages[0].Index)
	assert.Equal(t, 4, d.Messages[1].Index)
	assert.Equal(t, "t0", d.StartTime)
	assert.Equal(t, "t4", d.EndTime)
	assert.Equal(t, 5, d.MessageCount)

	require.Len(t, d.ToolUses, 1)
	assert.Equal(t, "y", d.ToolUses[0].ToolUseID)
	assert.Equal(t, 3, d.ToolUses[0].MessageIndex)
	assert.True(t, d.ToolUses[0].IsError)
	assert.Equal(t, 2, d.ToolUseCount)
}

func TestReconcileIgnoresToolsBeforeWatermark(t *testing.T) {
	// the invocation at index 1 is already persisted; its late result is not re-paired
	d := Reconcile("s1", scenario(t), Prior{Exists: true, MaxIndex: 1, ToolUseCount: 1})
	require.Len(t, d.Messages, 1)
	assert.Equal(t, 2, d.Messages[0].Index)
	assert.Empty(t, d.ToolUses)
}

func TestReconcileUnpairedInvocation(t *testing.T) {
	recs := []parse.Record{
		msg(t, "t0", `{"role":"assistant","content":[{"type":"tool_use","id":"z","name":"Bash"}]}`),
	}
	d := Reconcile("s1", recs, NewSession())
	require.Len(t, d.ToolUses, 1)
	assert.Nil(t, d.ToolUses[0].ToolResult)
	assert.Nil(t, d.ToolUses[0].ToolInput)
	assert.False(t, d.ToolUses[0].IsError)
}

func TestReconcileResultInSameMessage(t *testing.T) {
	recs := []parse.Record{
		msg(t, "t0", `{"role":"assistant","content":[
			{"type":"tool_use","id":"a","name":"Glob","input":{"pattern":"*"}},
			{"type":"tool_result","tool_use_id":"a","content":"x.go"}]}`),
	}
	d := Reconcile("s1", recs, NewSession())
	require.Len(t, d.ToolUses, 1)
	require.NotNil(t, d.ToolUses[0].ToolResult)
	assert.Equal(t, "x.go", *d.ToolUses[0].ToolResult)
}

func TestReconcileDuplicateInvocationKeepsFirstPosition(t *testing.T) {
	recs := []parse.Record{
		msg(t, "t0", `{"role":"assistant","content":[{"type":"tool_use","id":"a","name":"First"},{"type":"tool_use","id":"b","name":"Other"}]}`),
		msg(t, "t1", `{"role":"assistant","content":[{"type":"tool_use","id":"a","name":"Second"}]}`),
	}
	d := Reconcile("s1", recs, NewSession())
	require.Len(t, d.ToolUses, 2)
	assert.Equal(t, "a", d.ToolUses[0].ToolUseID)
	assert.Equal(t, "Second", d.ToolUses[0].ToolName)
	assert.Equal(t, 1, d.ToolUses[0].MessageIndex)
	assert.Equal(t, "b", d.ToolUses[1].ToolUseID)
}

func TestReconcileSkipsLegacyRecords(t *testing.T) {
	recs := []parse.Record{
		{Kind: parse.KindToolUse, ToolUse: &parse.LegacyToolUse{ID: "l", Name: "Bash"}},
		msg(t, "t0", `{"role":"user","content":"hi"}`),
	}
	d := Reconcile("s1", recs, NewSession())
	require.Len(t, d.Messages, 1)
	assert.Equal(t, 0, d.Messages[0].Index)
	assert.Empty(t, d.ToolUses)
}

func TestReconcileEmpty(t *testing.T) {
	d := Reconcile("s1", nil, NewSession())
	assert.True(t, d.Empty())
	assert.Equal(t, 0, d.MessageCount)
	assert.False(t, d.Shrunk)
}

func TestReconcileShrunkFile(t *testing.T) {
	d := Reconcile("s1", scenario(t)[:2], Prior{Exists: true, MaxIndex: 4, ToolUseCount: 3})
	assert.True(t, d.Shrunk)
	assert.True(t, d.Empty())
	assert.Empty(t, d.ToolUses)
	assert.Equal(t, 5, d.MessageCount)
	assert.Equal(t, 3, d.ToolUseCount)
}

func TestReconcileIndicesStableAcrossPasses(t *testing.T) {
	var recs []parse.Record
	for i := 0; i < 10; i++ {
		recs = append(recs, msg(t, fmt.Sprintf("t%d", i), fmt.Sprintf(`{"role":"user","content":"m%d"}`, i)))
	}

	first := Reconcile("s1", recs[:4], NewSession())
	second := Reconcile("s1", recs, Prior{Exists: true, MaxIndex: first.Messages[len(first.Messages)-1].Index})

	var all []int
	for _, m := range append(first.Messages, second.Messages...) {
		all = append(all, m.Index)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)
	assert.Equal(t, "m4", second.Messages[0].Content)
}
