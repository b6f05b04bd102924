package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAlignsWideRunes(t *testing.T) {
	tb := &table{headers: []string{"NAME", "N"}}
	tb.add("项目", 3)
	tb.add("app", 12)

	var buf bytes.Buffer
	tb.write(&buf)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "NAME  N", lines[0])
	assert.Equal(t, "----  --", lines[1])
	assert.Equal(t, "项目  3", lines[2])
	assert.Equal(t, "app   12", lines[3])
}

func TestTableTruncates(t *testing.T) {
	tb := &table{headers: []string{"A", "B"}, max: 5}
	tb.add("abcdefgh", "x\ny")

	var buf bytes.Buffer
	tb.write(&buf)
	assert.Contains(t, buf.String(), "abcd…")
	assert.Contains(t, buf.String(), "x y")
}

func TestPaletteSnippet(t *testing.T) {
	assert.Equal(t, ">>>go<<< test", palette{}.snippet(">>>go<<<\ttest"))
	assert.Equal(t, "\033[1;31mgo\033[0m", palette{on: true}.snippet(">>>go<<<"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "-", formatDuration(0))
	assert.Equal(t, "42s", formatDuration(42))
	assert.Equal(t, "3m05s", formatDuration(185))
	assert.Equal(t, "2h01m", formatDuration(7260))
}
