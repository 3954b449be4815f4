// Package lines classifies authored content lines by their directive prefix and
// binds choice lines to the encounters that own them.
//
// A line ID is a directive character followed by dotted segments:
//
//	#<room>.<event>          event (needs a trigger condition)
//	@<room>.<encounter>...   content of the encounter named by the whole ID body;
//	                         @<room>.description is the room description
//	!<room>.<encounter>.<c>  choice belonging to encounter <room>.<encounter>
//	^<room>.<anchor>         named room anchor text
package lines

import "strings"

// Directive is the leading character of a content-line ID.
type Directive byte

// Recognised directives.
const (
	Event   Directive = '#'
	Content Directive = '@'
	Choice  Directive = '!'
	Anchor  Directive = '^'
)

// Valid reports whether d is one of the four recognised directives.
func (d Directive) Valid() bool {
	switch d {
	case Event, Content, Choice, Anchor:
		return true
	}
	return false
}

// ID is a parsed content-line ID.
type ID struct {
	Directive Directive
	Segments  []string
}

// ParseID splits raw into its directive and dotted segments.
//
// Postcondition: ok is false when raw is empty or its first character is not a
// recognised directive. Segment count is not checked here.
func ParseID(raw string) (ID, bool) {
	if raw == "" {
		return ID{}, false
	}
	d := Directive(raw[0])
	if !d.Valid() {
		return ID{}, false
	}
	return ID{Directive: d, Segments: strings.Split(raw[1:], ".")}, true
}

// Body returns the ID without its directive.
func (id ID) Body() string {
	return strings.Join(id.Segments, ".")
}

// String returns the ID with its directive.
func (id ID) String() string {
	return string(id.Directive) + id.Body()
}

// HasSegments reports whether the ID has at least n non-empty segments.
func (id ID) HasSegments(n int) bool {
	if len(id.Segments) < n {
		return false
	}
	for _, s := range id.Segments[:n] {
		if s == "" {
			return false
		}
	}
	return true
}

// Room returns the first segment, which names the owning room.
func (id ID) Room() string {
	if len(id.Segments) == 0 {
		return ""
	}
	return id.Segments[0]
}

// SplitEncounterID splits an encounter ID "<room>.<sub>[...]" into its room
// and sub-element segments.
//
// Postcondition: ok is false when the ID has fewer than two non-empty segments.
func SplitEncounterID(encounterID string) (room, sub string, ok bool) {
	segs := strings.Split(encounterID, ".")
	if len(segs) < 2 || segs[0] == "" || segs[1] == "" {
		return "", "", false
	}
	return segs[0], segs[1], true
}
