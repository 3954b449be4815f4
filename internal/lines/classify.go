package lines

import (
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonforge/internal/binding"
	"github.com/cory-johannsen/dungeonforge/internal/layer"
)

// Parameter keys read by the classifier.
const (
	ParamCondition = binding.KeyCondition
	ParamAnyOf     = "any"
	ParamRooms     = "rooms"
	ParamRepeat    = "repeat"
)

// DescriptionSegment marks a content line as its room's description.
const DescriptionSegment = "description"

// EventDecl is an event declared by a '#' line with a trigger condition.
type EventDecl struct {
	// ID is the line ID without its directive.
	ID string
	// Room is the primary room, taken from the first segment.
	Room string
	// Rooms lists additional rooms from the "rooms" parameter.
	Rooms []string
	// Conditions holds the trigger: one condition, or an any-of list.
	Conditions []string
	Repeatable bool
	Params     map[string]any
}

// AllRooms returns the primary room followed by the additional rooms, without
// repeats.
func (e EventDecl) AllRooms() []string {
	out := []string{e.Room}
	seen := map[string]bool{e.Room: true}
	for _, r := range e.Rooms {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// ContentDecl is an '@' line bound to a room description or an encounter.
type ContentDecl struct {
	Line Line
	Room string
	// Encounter is the line ID without its directive; empty for description
	// lines.
	Encounter   string
	Description bool
}

// AnchorDecl is a '^' line naming a piece of room text.
type AnchorDecl struct {
	Line Line
	Room string
	Name string
}

// Result is the output of Classify.
type Result struct {
	Events  []EventDecl
	Choices []Line
	Content []ContentDecl
	Anchors []AnchorDecl
	// Order lists encounter IDs by their first content line.
	Order []string
}

// Classify sorts lines into events, encounter content, anchors, and queued
// choices by directive prefix. Lines with an unrecognised prefix are ignored;
// lines with too few segments are logged and skipped. Classify never fails.
func Classify(lines []Line, logger *zap.Logger) *Result {
	res := &Result{}
	ordered := make(map[string]bool)

	for _, l := range lines {
		id, ok := ParseID(l.ID)
		if !ok {
			continue
		}
		switch id.Directive {
		case Event:
			conds := triggerConditions(l.Params)
			if len(conds) == 0 {
				continue
			}
			if !id.HasSegments(2) {
				logger.Warn("event line needs <room>.<name>; skipping", zap.String("line", l.ID))
				continue
			}
			res.Events = append(res.Events, EventDecl{
				ID:         id.Body(),
				Room:       id.Room(),
				Rooms:      listParam(l.Params[ParamRooms]),
				Conditions: conds,
				Repeatable: boolParam(l.Params[ParamRepeat]),
				Params:     l.Params,
			})

		case Content:
			if !id.HasSegments(2) {
				logger.Warn("content line needs <room>.<encounter>; skipping", zap.String("line", l.ID))
				continue
			}
			if id.Segments[1] == DescriptionSegment {
				res.Content = append(res.Content, ContentDecl{Line: l, Room: id.Room(), Description: true})
				continue
			}
			enc := id.Body()
			res.Content = append(res.Content, ContentDecl{Line: l, Room: id.Room(), Encounter: enc})
			if !ordered[enc] {
				ordered[enc] = true
				res.Order = append(res.Order, enc)
			}

		case Choice:
			if !id.HasSegments(3) {
				logger.Warn("choice line needs <room>.<encounter>.<choice>; skipping", zap.String("line", l.ID))
				continue
			}
			res.Choices = append(res.Choices, l)

		case Anchor:
			if !id.HasSegments(2) {
				logger.Warn("anchor line needs <room>.<anchor>; skipping", zap.String("line", l.ID))
				continue
			}
			res.Anchors = append(res.Anchors, AnchorDecl{
				Line: l,
				Room: id.Room(),
				Name: strings.Join(id.Segments[1:], "."),
			})
		}
	}
	return res
}

func triggerConditions(params map[string]any) []string {
	if params == nil {
		return nil
	}
	if c, ok := params[ParamCondition].(string); ok && strings.TrimSpace(c) != "" {
		return []string{c}
	}
	return listParam(params[ParamAnyOf])
}

// listParam accepts a comma-separated string or a list of strings.
func listParam(v any) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	case []any:
		for _, e := range t {
			if s, ok := layer.RecordID(e); ok {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = t
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func boolParam(v any) bool {
	b, _ := v.(bool)
	return b
}
