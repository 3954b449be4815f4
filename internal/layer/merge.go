package layer

import (
	"reflect"
	"strconv"
)

// Policy declares how array-valued fields merge. Paths are dotted field names
// relative to the merged object (array indices are not part of a path).
//
// Arrays not named by Keyed or Additive are replaced wholesale by the last
// layer that defines them.
type Policy struct {
	// Keyed maps a field path to the id field of its elements. Elements merge
	// by matching id; unmatched elements append; absent elements are kept.
	Keyed map[string]string
	// Additive names field paths whose arrays concatenate across layers, keeping
	// the first occurrence of each repeated element.
	Additive map[string]bool
}

// Policies holds the per-part merge policies of a dungeon.
type Policies struct {
	Config    Policy
	Room      Policy
	Encounter Policy
	Line      Policy
}

// DefaultPolicies are the policies used by the dungeon compiler. Room door
// lists are additive so a mod can connect a new room to an existing one
// without restating the existing room's doors.
func DefaultPolicies() Policies {
	return Policies{
		Room: Policy{Additive: map[string]bool{"doors": true}},
	}
}

// MergeObjects folds objs left to right into a single object. Fields defined
// in a later object overwrite the accumulator; nested objects merge
// recursively; fields a layer leaves undefined (or null) are untouched.
//
// Precondition: every objs[i].Value must be a map[string]any.
// Postcondition: Returns *NoDataError for zero inputs, the sole input unchanged
// for one input, or a fresh object sharing no maps or slices with the inputs.
func MergeObjects(objs []Named, p Policy) (map[string]any, error) {
	if len(objs) == 0 {
		return nil, &NoDataError{What: "objects"}
	}
	first, ok := objs[0].Value.(map[string]any)
	if !ok {
		return nil, mismatch(objs[0].Layer, "", "mapping", objs[0].Value)
	}
	if len(objs) == 1 {
		return first, nil
	}

	acc := deepCopy(first).(map[string]any)
	for _, o := range objs[1:] {
		m, ok := o.Value.(map[string]any)
		if !ok {
			return nil, mismatch(o.Layer, "", "mapping", o.Value)
		}
		merged, err := mergeMaps(o.Layer, "", acc, m, p)
		if err != nil {
			return nil, err
		}
		acc = merged
	}
	return acc, nil
}

// MergeCollection folds ID-keyed record lists into one list with exactly one
// record per ID. The first-seen order of IDs is preserved: later layers update
// existing records in place and new IDs append at the end.
//
// Precondition: every items[i].Value must be a list of mappings with an id.
// Postcondition: Returns the merged records (nil for no input) or a
// *SchemaMismatchError naming the offending layer and path.
func MergeCollection(field string, items []Named, p Policy) ([]Record, error) {
	var out []Record
	index := make(map[string]int)
	for _, it := range items {
		list, err := asList(it.Layer, field, it.Value)
		if err != nil {
			return nil, err
		}
		for i, elem := range list {
			path := field + "[" + strconv.Itoa(i) + "]"
			rec, ok := elem.(map[string]any)
			if !ok {
				return nil, mismatch(it.Layer, path, "mapping", elem)
			}
			id, ok := RecordID(rec[IDField])
			if !ok {
				return nil, mismatch(it.Layer, path+"."+IDField, "id", rec[IDField])
			}
			if at, exists := index[id]; exists {
				merged, err := mergeMaps(it.Layer, "", out[at], rec, p)
				if err != nil {
					return nil, err
				}
				merged[IDField] = id
				out[at] = merged
				continue
			}
			fresh := deepCopy(rec).(map[string]any)
			fresh[IDField] = id
			index[id] = len(out)
			out = append(out, fresh)
		}
	}
	return out, nil
}

// Dataset is the merged view of a layer stack.
type Dataset struct {
	// Config is nil when no layer contributes a config.
	Config     map[string]any
	Rooms      []Record
	Encounters []Record
	Lines      []Record
}

// Merge folds layers left to right into one Dataset, applying pol per part.
// A layer contributing nothing for a part is skipped for that part.
//
// Postcondition: Returns *NoDataError for zero layers and
// *SchemaMismatchError for a malformed layer.
func Merge(layers []Layer, pol Policies) (*Dataset, error) {
	if len(layers) == 0 {
		return nil, &NoDataError{What: "layers"}
	}
	ds := &Dataset{}

	if cfgs := Collect(layers, ConfigPart); len(cfgs) > 0 {
		cfg, err := MergeObjects(cfgs, pol.Config)
		if err != nil {
			return nil, err
		}
		ds.Config = cfg
	}

	parts := []struct {
		field  string
		part   Part
		policy Policy
		dst    *[]Record
	}{
		{"rooms", RoomsPart, pol.Room, &ds.Rooms},
		{"encounters", EncountersPart, pol.Encounter, &ds.Encounters},
		{"lines", LinesPart, pol.Line, &ds.Lines},
	}
	for _, pt := range parts {
		items := Collect(layers, pt.part)
		if len(items) == 0 {
			continue
		}
		recs, err := MergeCollection(pt.field, items, pt.policy)
		if err != nil {
			return nil, err
		}
		*pt.dst = recs
	}
	return ds, nil
}

// Squash merges layers into a single layer named name. Squashing [A, B] and
// then [AB, C] yields the same layer as squashing [A, B, C].
//
// Postcondition: Returns *NoDataError for zero layers.
func Squash(name string, layers []Layer, pol Policies) (Layer, error) {
	ds, err := Merge(layers, pol)
	if err != nil {
		return Layer{}, err
	}
	out := Layer{Name: name}
	if ds.Config != nil {
		out.Config = deepCopy(ds.Config)
	}
	out.Rooms = toList(ds.Rooms)
	out.Encounters = toList(ds.Encounters)
	out.Lines = toList(ds.Lines)
	return out, nil
}

// toList returns recs as a generic list, or nil for an absent part.
func toList(recs []Record) any {
	if recs == nil {
		return nil
	}
	list := make([]any, len(recs))
	for i, r := range recs {
		list[i] = r
	}
	return list
}

func mergeMaps(layerName, path string, dst, src map[string]any, p Policy) (map[string]any, error) {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if v == nil {
			continue
		}
		merged, err := mergeValue(layerName, join(path, k), out[k], v, p)
		if err != nil {
			return nil, err
		}
		out[k] = merged
	}
	return out, nil
}

func mergeValue(layerName, path string, dst, src any, p Policy) (any, error) {
	switch s := src.(type) {
	case map[string]any:
		if d, ok := dst.(map[string]any); ok {
			return mergeMaps(layerName, path, d, s, p)
		}
		return deepCopy(s), nil
	case []any, []map[string]any:
		list, _ := asList(layerName, path, s)
		if idField, ok := p.Keyed[path]; ok {
			return mergeKeyed(layerName, path, idField, dst, list, p)
		}
		if p.Additive[path] {
			return mergeAdditive(layerName, path, dst, list)
		}
		return deepCopy(list), nil
	default:
		return src, nil
	}
}

func mergeKeyed(layerName, path, idField string, dst any, src []any, p Policy) (any, error) {
	var base []any
	if dst != nil {
		var err error
		if base, err = asList(layerName, path, dst); err != nil {
			return nil, err
		}
	}
	out := make([]any, len(base), len(base)+len(src))
	copy(out, base)
	index := make(map[string]int, len(base))
	for i, e := range base {
		if m, ok := e.(map[string]any); ok {
			if id, ok := RecordID(m[idField]); ok {
				index[id] = i
			}
		}
	}
	for i, e := range src {
		elemPath := path + "[" + strconv.Itoa(i) + "]"
		m, ok := e.(map[string]any)
		if !ok {
			return nil, mismatch(layerName, elemPath, "mapping", e)
		}
		id, ok := RecordID(m[idField])
		if !ok {
			return nil, mismatch(layerName, elemPath+"."+idField, "id", m[idField])
		}
		if at, exists := index[id]; exists {
			prev, _ := out[at].(map[string]any)
			merged, err := mergeMaps(layerName, path, prev, m, p)
			if err != nil {
				return nil, err
			}
			out[at] = merged
			continue
		}
		index[id] = len(out)
		out = append(out, deepCopy(m))
	}
	return out, nil
}

func mergeAdditive(layerName, path string, dst any, src []any) (any, error) {
	var base []any
	if dst != nil {
		var err error
		if base, err = asList(layerName, path, dst); err != nil {
			return nil, err
		}
	}
	out := make([]any, 0, len(base)+len(src))
	for _, e := range append(append([]any(nil), base...), src...) {
		if containsValue(out, e) {
			continue
		}
		out = append(out, deepCopy(e))
	}
	return out, nil
}

func containsValue(list []any, v any) bool {
	for _, e := range list {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

func asList(layerName, path string, v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, nil
	default:
		return nil, mismatch(layerName, path, "list", v)
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
