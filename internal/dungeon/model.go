// Package dungeon compiles a layer stack into a linked, queryable dungeon
// graph of rooms, encounters, events, choices, and doors.
package dungeon

import (
	"github.com/cory-johannsen/dungeonforge/internal/binding"
	"github.com/cory-johannsen/dungeonforge/internal/geometry"
	"github.com/cory-johannsen/dungeonforge/internal/lines"
)

// Type selects how a dungeon is presented and which geometry inputs it needs.
type Type string

const (
	// TypeRooms is a plain room graph.
	TypeRooms Type = "rooms"
	// TypeText is line-oriented; encounters may exist only as content lines.
	TypeText Type = "text"
	// TypeScreen is a single screen; authored rooms collapse into one.
	TypeScreen Type = "screen"
	// TypeMap is a room graph over a background map.
	TypeMap Type = "map"
)

// Valid reports whether t is a recognised dungeon type.
func (t Type) Valid() bool {
	switch t {
	case TypeRooms, TypeText, TypeScreen, TypeMap:
		return true
	}
	return false
}

// ScreenRoomID is the ID of the single room of a screen dungeon.
const ScreenRoomID = "screen"

// Fog is a room's fog-of-war configuration.
type Fog struct {
	Enabled bool
	Radius  float64
	Opacity float64
	// Extra holds fog settings the compiler does not interpret.
	Extra map[string]any
}

// Neighbor is an adjacent room and the direction of the connection toward
// it, in degrees.
type Neighbor struct {
	Room  *Room
	Angle float64
}

// Room is one node of the dungeon graph.
type Room struct {
	ID  string
	Pos geometry.Point
	Fog Fog
	// Assets lists default asset references in authored order.
	Assets    []string
	Neighbors []Neighbor
	Events    []*Event
	// Description is nil when no description content exists for the room.
	Description *Encounter
	// Anchors maps anchor names to their text.
	Anchors map[string]string
	Params  binding.Params
	Extra   map[string]any
}

// Neighbor returns the neighbor entry for id.
func (r *Room) Neighbor(id string) (Neighbor, bool) {
	for _, n := range r.Neighbors {
		if n.Room.ID == id {
			return n, true
		}
	}
	return Neighbor{}, false
}

// Transform places an encounter within its room.
type Transform struct {
	X, Y, Z  float64
	Scale    float64
	Rotation float64
}

// Visual is an encounter's presentation: an image or a polygon.
type Visual struct {
	Image   string
	Polygon []geometry.Point
}

// Encounter is a point of interest inside a room.
type Encounter struct {
	ID        string
	Room      *Room
	Transform Transform
	// InverseScale is 1 / (dungeon scale * transform scale).
	InverseScale float64
	Visual       Visual
	// Visible gates whether the encounter is shown; nil means always.
	Visible binding.Predicate
	// Content holds the encounter's content lines in authored order.
	Content []lines.Line
	Choices []*Choice
	Params  binding.Params
	// Synthesized is set for encounters built from content lines alone.
	Synthesized bool
	Extra       map[string]any
}

// IsVisible evaluates the visibility predicate.
func (e *Encounter) IsVisible() bool {
	return e.Visible == nil || e.Visible()
}

// Text returns the text of the first content line, or "".
func (e *Encounter) Text() string {
	if len(e.Content) == 0 {
		return ""
	}
	return e.Content[0].Text
}

// AvailableChoices returns the choices whose conditions currently hold.
func (e *Encounter) AvailableChoices() []*Choice {
	var out []*Choice
	for _, c := range e.Choices {
		if c.Params.Available() {
			out = append(out, c)
		}
	}
	return out
}

// Event is a conditional trigger attached to one or more rooms.
type Event struct {
	ID string
	// Room is the primary room; Rooms lists every room the event is attached to,
	// starting with Room.
	Room       *Room
	Rooms      []*Room
	Repeatable bool
	// Trigger is true when any declared condition holds.
	Trigger binding.Predicate
	Params  map[string]any
}

// Triggered evaluates the event's trigger.
func (e *Event) Triggered() bool {
	return e.Trigger != nil && e.Trigger()
}

// Choice is a player-selectable option of an encounter.
type Choice struct {
	ID        string
	Name      string
	Encounter *Encounter
	Params    binding.Params
}
