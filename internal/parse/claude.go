package parse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"time"
)

// Warning describes a line that was skipped while decoding.
type Warning struct {
	File string
	Line int
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s:%d: %v", w.File, w.Line, w.Err)
}

type envelope struct {
	Message    json.RawMessage `json:"message"`
	Ts         json.RawMessage `json:"ts"`
	Timestamp  json.RawMessage `json:"timestamp"`
	ToolUse    json.RawMessage `json:"toolUse"`
	ToolResult json.RawMessage `json:"toolResult"`
}

// Decoder reads a Claude Code JSONL transcript.
type Decoder struct {
	Path string

	// OnWarning, when set, is called for every malformed line.
	OnWarning func(Warning)
}

func NewDecoder(path string) *Decoder {
	return &Decoder{Path: path}
}

// Records returns the recognized records of the file in order. The sequence
// reads the file lazily and starts over from the first line on every range.
// An I/O error is yielded once and ends the sequence; malformed lines are
// reported through OnWarning and skipped.
func (d *Decoder) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		f, err := os.Open(d.Path)
		if err != nil {
			yield(Record{}, err)
			return
		}
		defer f.Close()

		reader := bufio.NewReader(f)
		lineNum := 0
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil && err != io.EOF {
				yield(Record{}, fmt.Errorf("read %s: %w", d.Path, err))
				return
			}
			if len(line) > 0 {
				lineNum++
			}
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				rec, ok, perr := decodeLine(line)
				if perr != nil {
					d.warn(Warning{File: d.Path, Line: lineNum, Err: perr})
				} else if ok {
					rec.Line = lineNum
					if !yield(rec, nil) {
						return
					}
				}
			}
			if err == io.EOF {
				return
			}
		}
	}
}

func (d *Decoder) warn(w Warning) {
	if d.OnWarning != nil {
		d.OnWarning(w)
	}
}

// DecodeFile decodes the whole file, collecting records and warnings.
func DecodeFile(path string) (*Transcript, error) {
	t := &Transcript{Path: path}
	dec := NewDecoder(path)
	dec.OnWarning = func(w Warning) {
		t.Warnings = append(t.Warnings, w)
	}
	for rec, err := range dec.Records() {
		if err != nil {
			return nil, err
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

var errNotObject = errors.New("record is not a JSON object")

// decodeLine returns ok=false for well-formed lines of an unrecognized shape.
func decodeLine(line []byte) (Record, bool, error) {
	if line[0] != '{' {
		return Record{}, false, errNotObject
	}
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Record{}, false, err
	}

	ts := recordTime(env.Ts)
	if ts == "" {
		ts = recordTime(env.Timestamp)
	}

	switch {
	case isObject(env.Message):
		var msg Message
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return Record{}, false, fmt.Errorf("message: %w", err)
		}
		if msg.Role != "user" && msg.Role != "assistant" {
			return Record{}, false, nil
		}
		return Record{Kind: KindMessage, Timestamp: ts, Message: &msg}, true, nil

	case isObject(env.ToolUse):
		var tu LegacyToolUse
		if err := json.Unmarshal(env.ToolUse, &tu); err != nil {
			return Record{}, false, fmt.Errorf("toolUse: %w", err)
		}
		return Record{Kind: KindToolUse, Timestamp: ts, ToolUse: &tu}, true, nil

	case isObject(env.ToolResult):
		var tr LegacyToolResult
		if err := json.Unmarshal(env.ToolResult, &tr); err != nil {
			return Record{}, false, fmt.Errorf("toolResult: %w", err)
		}
		return Record{Kind: KindToolResult, Timestamp: ts, ToolResult: &tr}, true, nil
	}
	return Record{}, false, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// recordTime renders a "ts"/"timestamp" value as text. Strings are kept
// verbatim; numbers are epoch milliseconds. Empty and zero values yield "".
func recordTime(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || ms == 0 {
		return ""
	}
	return time.UnixMilli(int64(ms)).UTC().Format("2006-01-02T15:04:05.000Z")
}
