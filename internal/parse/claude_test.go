package parse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sess-1.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestDecodeFileRecognizesRecords(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","message":{"role":"user","content":"hello"},"timestamp":"2025-01-01T00:00:00Z"}`,
		``,
		`   `,
		`{"type":"summary","summary":"not a message"}`,
		`{"message":{"role":"assistant","content":[{"type":"text","text":"hi"}]},"ts":1735689601000}`,
		`{"toolUse":{"id":"t1","name":"Bash","input":{"command":"ls"}},"timestamp":"2025-01-01T00:00:02Z"}`,
		`{"toolResult":{"toolUseId":"t1","content":"ok","isError":false}}`,
		`{"message":{"role":"system","content":"ignored"}}`,
	)

	tr, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Empty(t, tr.Warnings)
	require.Len(t, tr.Records, 4)

	assert.Equal(t, KindMessage, tr.Records[0].Kind)
	assert.Equal(t, 1, tr.Records[0].Line)
	assert.Equal(t, "2025-01-01T00:00:00Z", tr.Records[0].Timestamp)

	assert.Equal(t, KindMessage, tr.Records[1].Kind)
	assert.Equal(t, 5, tr.Records[1].Line)
	assert.Equal(t, "2025-01-01T00:00:01.000Z", tr.Records[1].Timestamp)

	assert.Equal(t, KindToolUse, tr.Records[2].Kind)
	assert.Equal(t, "Bash", tr.Records[2].ToolUse.Name)
	assert.Equal(t, KindToolResult, tr.Records[3].Kind)
	assert.Equal(t, "t1", tr.Records[3].ToolResult.ToolUseID)

	assert.Len(t, tr.Messages(), 2)
}

func TestDecodeFileSkipsMalformedLines(t *testing.T) {
	path := writeTranscript(t,
		`{"message":{"role":"user","content":"one"},"timestamp":"t0"}`,
		`{"message":{"role":"assistant","content":"two"},"timestamp":"t1"}`,
		`{"message":{"role":"user","content":"thr`,
		`{"message":{"role":"assistant","content":"four"},"timestamp":"t3"}`,
		`{"message":{"role":"user","content":"five"},"timestamp":"t4"}`,
	)

	tr, err := DecodeFile(path)
	require.NoError(t, err)
	require.Len(t, tr.Records, 4)
	require.Len(t, tr.Warnings, 1)
	assert.Equal(t, 3, tr.Warnings[0].Line)
	assert.Equal(t, path, tr.Warnings[0].File)
	assert.Contains(t, tr.Warnings[0].String(), ":3:")

	var texts []string
	for _, r := range tr.Records {
		texts = append(texts, r.Message.Content.Flatten())
	}
	assert.Equal(t, []string{"one", "two", "four", "five"}, texts)
}

func TestDecodeFileNonObjectLineWarns(t *testing.T) {
	path := writeTranscript(t,
		`[1,2,3]`,
		`{"message":{"role":"user","content":"ok"}}`,
	)
	tr, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Len(t, tr.Records, 1)
	assert.Len(t, tr.Warnings, 1)
}

func TestDecodeFileMissingFile(t *testing.T) {
	_, err := DecodeFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestRecordsIsRestartable(t *testing.T) {
	path := writeTranscript(t,
		`{"message":{"role":"user","content":"a"}}`,
		`{"message":{"role":"assistant","content":"b"}}`,
	)
	dec := NewDecoder(path)

	count := func() int {
		n := 0
		for _, err := range dec.Records() {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, count())

	// stopping early must not break the next pass
	for range dec.Records() {
		break
	}
	assert.Equal(t, 2, count())
}

func TestDecodeLastLineWithoutNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	content := `{"message":{"role":"user","content":"a"}}` + "\n" + `{"message":{"role":"user","content":"b"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tr, err := DecodeFile(path)
	require.NoError(t, err)
	require.Len(t, tr.Records, 2)
	assert.Equal(t, 2, tr.Records[1].Line)
}

func TestTimestampPrefersTs(t *testing.T) {
	path := writeTranscript(t,
		`{"message":{"role":"user","content":"a"},"ts":"2025-02-02T00:00:00Z","timestamp":"2024-01-01T00:00:00Z"}`,
		`{"message":{"role":"user","content":"b"},"ts":0,"timestamp":"2024-01-01T00:00:00Z"}`,
		`{"message":{"role":"user","content":"c"}}`,
	)
	tr, err := DecodeFile(path)
	require.NoError(t, err)
	require.Len(t, tr.Records, 3)
	assert.Equal(t, "2025-02-02T00:00:00Z", tr.Records[0].Timestamp)
	assert.Equal(t, "2024-01-01T00:00:00Z", tr.Records[1].Timestamp)
	assert.Equal(t, "", tr.Records[2].Timestamp)
}
