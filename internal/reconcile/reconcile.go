// Package reconcile computes what a re-scanned transcript adds to the rows
// already persisted for its session.
package reconcile

import (
	"github.com/Zuo-Peng/cc-analytics/internal/parse"
)

// NoWatermark is the watermark of a session with no persisted messages.
const NoWatermark = -1

// Prior is the persisted state of a session before this pass.
type Prior struct {
	Exists       bool   // a sessions row exists
	ProjectID    string // owner of the existing row
	MaxIndex     int    // highest persisted message_index, or NoWatermark
	ToolUseCount int
}

// NewSession is the Prior of a session never seen before.
func NewSession() Prior {
	return Prior{MaxIndex: NoWatermark}
}

// Delta is the result of reconciling one transcript against its Prior.
type Delta struct {
	SessionID string
	IsNew     bool

	Messages []parse.MessageRow // insert set, ascending index
	ToolUses []parse.ToolUseRow // invocations owned by inserted messages

	// Session aggregates, recomputed over the whole file.
	StartTime    string
	EndTime      string
	MessageCount int
	ToolUseCount int

	// Shrunk is set when the file decodes to fewer messages than are
	// already persisted.
	Shrunk bool
}

// Empty reports whether applying the delta would change nothing.
func (d Delta) Empty() bool {
	return len(d.Messages) == 0
}

// Reconcile assigns every message record its zero-based index in file order
// and returns the messages and tool invocations beyond prior.MaxIndex.
// Records must be the complete decode of the file, not just its tail.
func Reconcile(sessionID string, records []parse.Record, prior Prior) Delta {
	d := Delta{SessionID: sessionID, IsNew: !prior.Exists}
	w := prior.MaxIndex
	if w < NoWatermark {
		w = NoWatermark
	}

	var (
		invOrder []string
		invs     = map[string]pendingInvocation{}
		results  = map[string]parse.ToolResultPart{}
	)

	index := 0
	for _, rec := range records {
		// legacy standalone tool records are not owned by a message
		if rec.Kind != parse.KindMessage || rec.Message == nil {
			continue
		}
		if index == 0 {
			d.StartTime = rec.Timestamp
		}
		d.EndTime = rec.Timestamp

		if index > w {
			d.Messages = append(d.Messages, parse.ExtractMessage(sessionID, index, rec))
			for _, p := range rec.Message.Content.Parts {
				switch part := p.(type) {
				case parse.ToolInvocationPart:
					if part.ID == "" {
						continue
					}
					if _, seen := invs[part.ID]; !seen {
						invOrder = append(invOrder, part.ID)
					}
					invs[part.ID] = pendingInvocation{part: part, index: index, timestamp: rec.Timestamp}
				case parse.ToolResultPart:
					if part.ToolUseID == "" {
						continue
					}
					results[part.ToolUseID] = part
				}
			}
		}
		index++
	}
	d.MessageCount = index

	if index < w+1 {
		// never rewind rows or aggregates that are already persisted
		d.Shrunk = true
		d.Messages = nil
		d.MessageCount = w + 1
		d.ToolUseCount = prior.ToolUseCount
		return d
	}

	for _, id := range invOrder {
		pi := invs[id]
		var res *parse.ToolResultPart
		if r, ok := results[id]; ok {
			res = &r
		}
		d.ToolUses = append(d.ToolUses, parse.ExtractToolUse(sessionID, pi.index, pi.timestamp, pi.part, res))
	}
	d.ToolUseCount = prior.ToolUseCount + len(d.ToolUses)
	return d
}

type pendingInvocation struct {
	part      parse.ToolInvocationPart
	index     int
	timestamp string
}
