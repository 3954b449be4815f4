package lines

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonforge/internal/layer"
)

// DungeonNameID is the well-known line holding a dungeon's display name.
const DungeonNameID = "$dungeon_name"

// Line is one raw content line.
type Line struct {
	// ID is the full line ID including its directive.
	ID string
	// Text is the authored text.
	Text string
	// Params is the optional parameter block; nil when absent.
	Params map[string]any
}

// FromRecords converts merged {id, text, params} records into lines, keeping
// record order. A record whose text or params has the wrong shape is logged
// and skipped.
func FromRecords(recs []layer.Record, logger *zap.Logger) []Line {
	out := make([]Line, 0, len(recs))
	for _, r := range recs {
		id, _ := layer.RecordID(r[layer.IDField])
		l := Line{ID: id}
		switch t := r["text"].(type) {
		case nil:
		case string:
			l.Text = t
		default:
			logger.Warn("content line text is not a string; skipping",
				zap.String("line", id),
			)
			continue
		}
		switch p := r["params"].(type) {
		case nil:
		case map[string]any:
			l.Params = p
		default:
			logger.Warn("content line params is not a mapping; skipping",
				zap.String("line", id),
			)
			continue
		}
		out = append(out, l)
	}
	return out
}

// Table is an ordered, indexed set of lines.
type Table struct {
	lines []Line
	byID  map[string]int
}

// NewTable indexes lines by ID. When an ID repeats, the later line wins but
// keeps the first line's position.
func NewTable(lines []Line) *Table {
	t := &Table{byID: make(map[string]int, len(lines))}
	for _, l := range lines {
		if at, ok := t.byID[l.ID]; ok {
			t.lines[at] = l
			continue
		}
		t.byID[l.ID] = len(t.lines)
		t.lines = append(t.lines, l)
	}
	return t
}

// Has reports whether a line with id exists.
func (t *Table) Has(id string) bool {
	_, ok := t.byID[id]
	return ok
}

// Get returns the line with id.
func (t *Table) Get(id string) (Line, bool) {
	at, ok := t.byID[id]
	if !ok {
		return Line{}, false
	}
	return t.lines[at], true
}

// Text returns the text of line id, or "" when it does not exist.
func (t *Table) Text(id string) string {
	l, _ := t.Get(id)
	return l.Text
}

// Lines returns the lines in authored order.
func (t *Table) Lines() []Line {
	return append([]Line(nil), t.lines...)
}

// Len returns the number of lines.
func (t *Table) Len() int {
	return len(t.lines)
}
