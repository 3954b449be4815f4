// Package geometry infers where the connection between two adjacent rooms is
// drawn, from room positions and declared neighbours alone.
package geometry

import "math"

// Point is a 2D position in dungeon space.
type Point struct {
	X float64
	Y float64
}

// Axis is the dominant direction of a connection.
type Axis int

const (
	// Vertical connections join a bottom-middle anchor to a top-middle anchor.
	Vertical Axis = iota
	// Horizontal connections join a right-middle anchor to a left-middle anchor.
	Horizontal
)

func (a Axis) String() string {
	if a == Horizontal {
		return "horizontal"
	}
	return "vertical"
}

// Placement is a positioned room with its declared neighbour IDs.
type Placement struct {
	ID        string
	Pos       Point
	Neighbors []string
}

// Connection is the single geometric representation of a door between two
// rooms, shared by both directions.
type Connection struct {
	// A is the lexically smaller room ID, B the larger.
	A    string
	B    string
	Axis Axis
	// From is the anchor on the left (horizontal) or upper (vertical) room;
	// To is the anchor on the other room.
	From Point
	To   Point
}

// Center returns the centre of a room icon of the given size placed at pos.
func Center(pos Point, size float64) Point {
	return Point{X: pos.X + size/2, Y: pos.Y + size/2}
}

// Angle returns the direction from one point to another in degrees, measured
// from the positive X axis, in (-180, 180].
func Angle(from, to Point) float64 {
	return math.Atan2(to.Y-from.Y, to.X-from.X) * 180 / math.Pi
}

// Build computes one Connection per unordered pair of adjacent rooms. A pair
// is handled only from the room whose ID sorts strictly before its
// neighbour's, which both deduplicates and fixes the owner of each pair.
// Neighbours that do not exist are skipped.
//
// Postcondition: Returns connections in room order then declared-neighbour
// order; the input is not modified.
func Build(rooms []Placement, iconSize float64) []Connection {
	byID := make(map[string]Placement, len(rooms))
	for _, r := range rooms {
		byID[r.ID] = r
	}

	var out []Connection
	seen := make(map[[2]string]bool)
	for _, r := range rooms {
		for _, nid := range r.Neighbors {
			n, ok := byID[nid]
			if !ok || !(r.ID < n.ID) {
				continue
			}
			key := [2]string{r.ID, n.ID}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Connect(r, n, iconSize))
		}
	}
	return out
}

// Connect computes the anchors between rooms a and b. When the horizontal
// centre delta strictly exceeds the vertical one the connection is
// horizontal; ties are vertical. Icons share one size, so the centre deltas
// are taken from the positions directly.
func Connect(a, b Placement, iconSize float64) Connection {
	dx, dy := b.Pos.X-a.Pos.X, b.Pos.Y-a.Pos.Y
	c := Connection{A: a.ID, B: b.ID}

	if math.Abs(dx) > math.Abs(dy) {
		left, right := a, b
		if dx < 0 {
			left, right = b, a
		}
		cl, cr := Center(left.Pos, iconSize), Center(right.Pos, iconSize)
		c.Axis = Horizontal
		c.From = Point{X: left.Pos.X + iconSize, Y: cl.Y}
		c.To = Point{X: right.Pos.X, Y: cr.Y}
		return c
	}

	top, bottom := a, b
	if dy < 0 {
		top, bottom = b, a
	}
	ct, cb2 := Center(top.Pos, iconSize), Center(bottom.Pos, iconSize)
	c.Axis = Vertical
	c.From = Point{X: ct.X, Y: top.Pos.Y + iconSize}
	c.To = Point{X: cb2.X, Y: bottom.Pos.Y}
	return c
}
