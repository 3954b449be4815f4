// Package layer folds an ordered stack of content layers (the "core" base layer
// followed by zero or more mods) into a single logical dataset.
//
// The engine is a pure function over its inputs: it never mutates a layer and
// holds no state, so it is safe to call concurrently for independent dungeons.
package layer

import (
	"fmt"
	"strconv"
)

// Record is one decoded content entity (room, encounter, content line).
type Record = map[string]any

// IDField is the field every collection entry is keyed by.
const IDField = "id"

// Layer is one overlay unit's contribution to a dungeon. Each part holds the
// raw decoded value so malformed shapes can be reported rather than silently
// dropped; a nil part means the layer does not touch it.
type Layer struct {
	// Name identifies the layer ("core", or a mod name).
	Name string
	// Config is expected to be a map[string]any.
	Config any
	// Rooms is expected to be a []any of records.
	Rooms any
	// Encounters is expected to be a []any of records.
	Encounters any
	// Lines is expected to be a []any of {id, text, params} records in authored order.
	Lines any
}

// Empty reports whether the layer contributes nothing.
func (l Layer) Empty() bool {
	return l.Config == nil && l.Rooms == nil && l.Encounters == nil && l.Lines == nil
}

// Named pairs one layer's value for a single part with the layer's name, so
// errors can point at the offending layer.
type Named struct {
	Layer string
	Value any
}

// Part selects one part of a Layer.
type Part func(Layer) any

// Parts of a Layer, for use with Collect.
var (
	ConfigPart     Part = func(l Layer) any { return l.Config }
	RoomsPart      Part = func(l Layer) any { return l.Rooms }
	EncountersPart Part = func(l Layer) any { return l.Encounters }
	LinesPart      Part = func(l Layer) any { return l.Lines }
)

// Collect returns the non-nil values of part across layers, in layer order.
func Collect(layers []Layer, part Part) []Named {
	var out []Named
	for _, l := range layers {
		if v := part(l); v != nil {
			out = append(out, Named{Layer: l.Name, Value: v})
		}
	}
	return out
}

// RecordID returns the normalized string ID of a record's id value.
// Numeric IDs (as decoded from JSON or YAML) are formatted without exponent.
//
// Postcondition: ok is false when v is missing, empty, or not a scalar.
func RecordID(v any) (id string, ok bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

// NoDataError is returned when a merge is requested over zero inputs.
type NoDataError struct {
	// What names the part that had no data ("config", "layers", ...).
	What string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("layer: no data to merge for %s", e.What)
}

// SchemaMismatchError is returned when a layer holds a value of the wrong shape
// where a mapping or list was required.
type SchemaMismatchError struct {
	Layer string
	Path  string
	Want  string
	Got   string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("layer %q: %s: expected %s, got %s", e.Layer, e.Path, e.Want, e.Got)
}

func mismatch(layerName, path, want string, got any) *SchemaMismatchError {
	return &SchemaMismatchError{Layer: layerName, Path: path, Want: want, Got: kindOf(got)}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "mapping"
	case []any, []map[string]any:
		return "list"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int64, uint64, float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
