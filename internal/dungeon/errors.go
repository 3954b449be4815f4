package dungeon

import "fmt"

// Stage names a step of a compilation run.
type Stage string

const (
	StageConfig     Stage = "config"
	StageGeometry   Stage = "geometry"
	StageRooms      Stage = "rooms"
	StageEncounters Stage = "encounters"
	StageDoors      Stage = "doors"
	StageContent    Stage = "content"
	StageCreate     Stage = "create"
)

// LoadError reports a compilation that halted. No dungeon is produced.
type LoadError struct {
	Dungeon string
	Stage   Stage
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading dungeon %q: %s: %v", e.Dungeon, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NotFoundError reports a lookup of an ID the dungeon does not contain.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}
