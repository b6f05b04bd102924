package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// table prints aligned columns, measuring cells in terminal cells so wide
// (CJK) project names line up.
type table struct {
	headers []string
	rows    [][]string
	max     int // cell width cap, 0 for none
}

func (t *table) add(cells ...any) {
	row := make([]string, len(cells))
	for i, c := range cells {
		s := strings.ReplaceAll(fmt.Sprint(c), "\n", " ")
		if t.max > 0 && runewidth.StringWidth(s) > t.max {
			s = runewidth.Truncate(s, t.max, "…")
		}
		row[i] = s
	}
	t.rows = append(t.rows, row)
}

func (t *table) widths() []int {
	w := make([]int, len(t.headers))
	for i, h := range t.headers {
		w[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if i < len(w) && runewidth.StringWidth(c) > w[i] {
				w[i] = runewidth.StringWidth(c)
			}
		}
	}
	return w
}

func (t *table) write(out io.Writer) {
	w := t.widths()
	line := func(cells []string) {
		var b strings.Builder
		for i, c := range cells {
			if i >= len(w) {
				break
			}
			if i == len(cells)-1 {
				b.WriteString(c)
				break
			}
			b.WriteString(runewidth.FillRight(c, w[i]))
			b.WriteString("  ")
		}
		fmt.Fprintln(out, strings.TrimRight(b.String(), " "))
	}

	line(t.headers)
	sep := make([]string, len(w))
	for i, n := range w {
		sep[i] = strings.Repeat("-", n)
	}
	line(sep)
	for _, row := range t.rows {
		line(row)
	}
}
