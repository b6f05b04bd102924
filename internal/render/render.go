// Package render formats the messages around a search hit for a terminal.
package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/cc-analytics/internal/index"
)

const (
	colorReset   = "\033[0m"
	colorUser    = "\033[1;34m" // bold blue
	colorAssist  = "\033[1;32m" // bold green
	colorDim     = "\033[2m"
	colorHit     = "\033[43m"   // yellow background
	colorBoldRed = "\033[1;31m" // keyword highlights
)

type Options struct {
	Query    string // highlighted in message text
	Width    int    // wrap width (0 = no wrap)
	MaxChars int    // per-message text cap (0 = no cap)
	Color    bool
}

// fts5Operators are FTS5 operators that should not be highlighted as keywords.
var fts5Operators = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "NEAR": true,
	"and": true, "or": true, "not": true, "near": true,
}

// queryTerms returns the words of an FTS query worth highlighting: operators,
// column filters, quotes and prefix stars are dropped.
func queryTerms(query string) []string {
	var terms []string
	for _, t := range strings.Fields(query) {
		if fts5Operators[t] {
			continue
		}
		if i := strings.IndexByte(t, ':'); i >= 0 {
			t = t[i+1:]
		}
		t = strings.Trim(t, `"*()`)
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// highlightKeywords wraps case-insensitive matches of query terms in bold red.
func highlightKeywords(text, query string) string {
	for _, term := range queryTerms(query) {
		lower := strings.ToLower(term)
		i := 0
		for i < len(text) {
			idx := strings.Index(strings.ToLower(text[i:]), lower)
			if idx < 0 {
				break
			}
			pos := i + idx
			orig := text[pos : pos+len(term)]
			replacement := colorBoldRed + orig + colorReset
			text = text[:pos] + replacement + text[pos+len(term):]
			i = pos + len(replacement)
		}
	}
	return text
}

// wrapLine breaks a single line into lines of at most maxWidth visible
// columns, skipping ANSI escape sequences when measuring.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var result []string
	var cur strings.Builder
	visW := 0

	i := 0
	for i < len(line) {
		if i+1 < len(line) && line[i] == '\033' && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}

		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)
		if visW+rw > maxWidth && visW > 0 {
			result = append(result, cur.String())
			cur.Reset()
			visW = 0
		}
		cur.WriteRune(r)
		visW += rw
		i += size
	}

	if cur.Len() > 0 {
		result = append(result, cur.String())
	}
	if len(result) == 0 {
		return []string{""}
	}
	return result
}

func clip(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Context renders msgs, marking the one at hitIndex, as an indented block.
func Context(msgs []index.StoredMessage, hitIndex int, opts Options) string {
	paint := func(color, s string) string {
		if !opts.Color {
			return s
		}
		return color + s + colorReset
	}

	var b strings.Builder
	writeLine := func(s string) {
		for _, wl := range wrapLine(s, opts.Width) {
			b.WriteString(strings.TrimRight(wl, " "))
			b.WriteString("\n")
		}
	}

	for _, m := range msgs {
		label := strings.ToUpper(m.Role)
		switch m.Role {
		case "user":
			label = paint(colorUser, label)
		case "assistant":
			label = paint(colorAssist, "ASST")
		}
		header := fmt.Sprintf("  [%d] %s %s", m.Index, label, paint(colorDim, m.Timestamp))
		if m.Index == hitIndex {
			header = paint(colorHit, fmt.Sprintf(">> [%d] %s %s", m.Index, strings.ToUpper(m.Role), m.Timestamp))
		}
		writeLine(header)

		text := clip(m.Content, opts.MaxChars)
		if opts.Color {
			text = highlightKeywords(text, opts.Query)
		}
		for _, tl := range strings.Split(text, "\n") {
			writeLine("    " + tl)
		}
	}
	return b.String()
}
