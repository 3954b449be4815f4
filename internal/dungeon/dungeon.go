package dungeon

import (
	"sync"

	"github.com/google/uuid"
	"github.com/zyedidia/generic/mapset"

	"github.com/cory-johannsen/dungeonforge/internal/geometry"
	"github.com/cory-johannsen/dungeonforge/internal/lines"
)

// Dungeon is a compiled dungeon graph. It exclusively owns its rooms,
// encounters, events, choices, and doors.
//
// Lookups are O(1). Visit state and door geometry are guarded by an internal
// lock; the graph itself is read-only after compilation.
type Dungeon struct {
	ID string
	// RunID identifies the compilation run that produced this instance.
	RunID  uuid.UUID
	Type   Type
	Config ConfigRecord
	// Width and Height are the background dimensions; zero when the type
	// needs none.
	Width, Height float64
	Scale         float64

	rooms          map[string]*Room
	roomOrder      []*Room
	encounters     map[string]*Encounter
	encounterOrder []*Encounter
	events         []*Event
	lines          *lines.Table
	iconSize       float64

	mu      sync.RWMutex
	doors   []geometry.Connection
	visited mapset.Set[string]
}

func newDungeon(id string, runID uuid.UUID) *Dungeon {
	return &Dungeon{
		ID:         id,
		RunID:      runID,
		rooms:      make(map[string]*Room),
		encounters: make(map[string]*Encounter),
		lines:      lines.NewTable(nil),
		visited:    mapset.New[string](),
	}
}

// Room returns the room with id.
//
// Postcondition: Returns *NotFoundError when no such room exists.
func (d *Dungeon) Room(id string) (*Room, error) {
	r, ok := d.rooms[id]
	if !ok {
		return nil, &NotFoundError{Kind: "room", ID: id}
	}
	return r, nil
}

// Encounter returns the encounter with id.
//
// Postcondition: Returns *NotFoundError when no such encounter exists.
func (d *Dungeon) Encounter(id string) (*Encounter, error) {
	e, ok := d.encounters[id]
	if !ok {
		return nil, &NotFoundError{Kind: "encounter", ID: id}
	}
	return e, nil
}

// Rooms returns the rooms in merge order.
func (d *Dungeon) Rooms() []*Room {
	return append([]*Room(nil), d.roomOrder...)
}

// Encounters returns the encounters in authored-content order, followed by
// encounters without content in merge order.
func (d *Dungeon) Encounters() []*Encounter {
	return append([]*Encounter(nil), d.encounterOrder...)
}

// Events returns every event in declaration order.
func (d *Dungeon) Events() []*Event {
	return append([]*Event(nil), d.events...)
}

// Doors returns one connection per adjacent room pair.
func (d *Dungeon) Doors() []geometry.Connection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]geometry.Connection(nil), d.doors...)
}

// Line returns the content line with id.
func (d *Dungeon) Line(id string) (lines.Line, bool) {
	return d.lines.Get(id)
}

// Name returns the text of the dungeon-name line, or the dungeon ID when the
// line is absent or empty.
func (d *Dungeon) Name() string {
	if name := d.lines.Text(lines.DungeonNameID); name != "" {
		return name
	}
	return d.ID
}

// StartRoom returns the configured start room, or the first room.
//
// Postcondition: Returns nil only for a dungeon without rooms.
func (d *Dungeon) StartRoom() *Room {
	if r, ok := d.rooms[d.Config.StartRoom]; ok {
		return r
	}
	if len(d.roomOrder) == 0 {
		return nil
	}
	return d.roomOrder[0]
}

// Visit marks room id as visited.
//
// Postcondition: Returns *NotFoundError when no such room exists.
func (d *Dungeon) Visit(id string) error {
	if _, ok := d.rooms[id]; !ok {
		return &NotFoundError{Kind: "room", ID: id}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visited.Put(id)
	return nil
}

// Visited reports whether room id has been visited.
func (d *Dungeon) Visited(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.visited.Has(id)
}

// VisitedRooms returns the visited rooms in merge order.
func (d *Dungeon) VisitedRooms() []*Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*Room
	for _, r := range d.roomOrder {
		if d.visited.Has(r.ID) {
			out = append(out, r)
		}
	}
	return out
}

// VisibleRooms returns, in merge order, the rooms that are visited, adjacent
// to a visited room, or not covered by fog.
func (d *Dungeon) VisibleRooms() []*Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*Room
	for _, r := range d.roomOrder {
		if d.visibleLocked(r) {
			out = append(out, r)
		}
	}
	return out
}

func (d *Dungeon) visibleLocked(r *Room) bool {
	if !r.Fog.Enabled || d.visited.Has(r.ID) {
		return true
	}
	for _, n := range r.Neighbors {
		if d.visited.Has(n.Room.ID) {
			return true
		}
	}
	return false
}

// MoveRoom repositions room id and rebuilds door geometry.
//
// Postcondition: Returns *NotFoundError when no such room exists.
func (d *Dungeon) MoveRoom(id string, pos geometry.Point) error {
	r, ok := d.rooms[id]
	if !ok {
		return &NotFoundError{Kind: "room", ID: id}
	}
	d.mu.Lock()
	r.Pos = pos
	d.mu.Unlock()
	d.RebuildDoors()
	return nil
}

// RebuildDoors recomputes door geometry and neighbor angles from the current
// room positions. It is idempotent.
func (d *Dungeon) RebuildDoors() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doors = buildDoors(d.roomOrder, d.iconSize)
}

// neighborAngle is the direction in degrees from the centre of a to the
// centre of b.
func neighborAngle(a, b *Room, iconSize float64) float64 {
	return geometry.Angle(geometry.Center(a.Pos, iconSize), geometry.Center(b.Pos, iconSize))
}

// buildDoors refreshes neighbor angles, which go stale when rooms move, and
// returns the door set of rooms.
func buildDoors(rooms []*Room, iconSize float64) []geometry.Connection {
	placements := make([]geometry.Placement, len(rooms))
	for i, r := range rooms {
		ids := make([]string, len(r.Neighbors))
		for j := range r.Neighbors {
			n := &r.Neighbors[j]
			n.Angle = neighborAngle(r, n.Room, iconSize)
			ids[j] = n.Room.ID
		}
		placements[i] = geometry.Placement{ID: r.ID, Pos: r.Pos, Neighbors: ids}
	}
	return geometry.Build(placements, iconSize)
}
