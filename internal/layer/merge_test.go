package layer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMergeObjects_NoInput(t *testing.T) {
	_, err := MergeObjects(nil, Policy{})
	var noData *NoDataError
	require.True(t, errors.As(err, &noData))
}

func TestMergeObjects_SingleInputReturnedUnchanged(t *testing.T) {
	cfg := map[string]any{"dungeon_type": "text"}
	got, err := MergeObjects([]Named{{Layer: "core", Value: cfg}}, Policy{})
	require.NoError(t, err)
	got["marker"] = true
	assert.Equal(t, true, cfg["marker"], "single input must be the same object")
}

func TestMergeObjects_LaterScalarsWinNestedMerge(t *testing.T) {
	core := map[string]any{
		"dungeon_type": "rooms",
		"fog":          map[string]any{"enabled": true, "radius": 2},
		"music":        "crypt.ogg",
	}
	mod := map[string]any{
		"fog":   map[string]any{"radius": 5},
		"music": "remix.ogg",
	}
	got, err := MergeObjects([]Named{{"core", core}, {"mod", mod}}, Policy{})
	require.NoError(t, err)

	assert.Equal(t, "rooms", got["dungeon_type"])
	assert.Equal(t, "remix.ogg", got["music"])
	assert.Equal(t, map[string]any{"enabled": true, "radius": 5}, got["fog"])
	// Inputs are untouched.
	assert.Equal(t, 2, core["fog"].(map[string]any)["radius"])
}

func TestMergeObjects_NullLeavesAccumulator(t *testing.T) {
	got, err := MergeObjects([]Named{
		{"core", map[string]any{"width": 10}},
		{"mod", map[string]any{"width": nil}},
	}, Policy{})
	require.NoError(t, err)
	assert.Equal(t, 10, got["width"])
}

func TestMergeObjects_SchemaMismatchNamesLayer(t *testing.T) {
	_, err := MergeObjects([]Named{
		{"core", map[string]any{}},
		{"broken_mod", []any{"not", "a", "map"}},
	}, Policy{})
	var sm *SchemaMismatchError
	require.True(t, errors.As(err, &sm))
	assert.Equal(t, "broken_mod", sm.Layer)
	assert.Equal(t, "mapping", sm.Want)
	assert.Equal(t, "list", sm.Got)
}

func TestMergeObjects_PlainArraysReplaced(t *testing.T) {
	got, err := MergeObjects([]Named{
		{"core", map[string]any{"assets": []any{"a.png", "b.png"}}},
		{"mod", map[string]any{"assets": []any{"c.png"}}},
	}, Policy{})
	require.NoError(t, err)
	assert.Equal(t, []any{"c.png"}, got["assets"])
}

func TestMergeObjects_AdditiveArraysConcatenateDeduplicated(t *testing.T) {
	p := Policy{Additive: map[string]bool{"doors": true}}
	got, err := MergeObjects([]Named{
		{"core", map[string]any{"doors": []any{"2", "3"}}},
		{"mod", map[string]any{"doors": []any{"3", "9"}}},
	}, p)
	require.NoError(t, err)
	assert.Equal(t, []any{"2", "3", "9"}, got["doors"])
}

func TestMergeObjects_KeyedArraysMergeByID(t *testing.T) {
	p := Policy{Keyed: map[string]string{"sounds": "id"}}
	got, err := MergeObjects([]Named{
		{"core", map[string]any{"sounds": []any{
			map[string]any{"id": "drip", "volume": 1},
			map[string]any{"id": "wind", "volume": 2},
		}}},
		{"mod", map[string]any{"sounds": []any{
			map[string]any{"id": "wind", "volume": 7},
			map[string]any{"id": "howl", "volume": 3},
		}}},
	}, p)
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"id": "drip", "volume": 1},
		map[string]any{"id": "wind", "volume": 7},
		map[string]any{"id": "howl", "volume": 3},
	}, got["sounds"])
}

func TestMergeCollection_OrderAndUpdate(t *testing.T) {
	core := []any{
		map[string]any{"id": "1", "x": 0, "y": 0},
		map[string]any{"id": "2", "x": 100, "y": 0},
	}
	mod := []any{
		map[string]any{"id": "3", "x": 200},
		map[string]any{"id": "1", "x": 50},
	}
	got, err := MergeCollection("rooms", []Named{{"core", core}, {"mod", mod}}, Policy{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0]["id"])
	assert.Equal(t, 50, got[0]["x"])
	assert.Equal(t, 0, got[0]["y"])
	assert.Equal(t, "2", got[1]["id"])
	assert.Equal(t, "3", got[2]["id"])
}

func TestMergeCollection_NumericIDsNormalized(t *testing.T) {
	got, err := MergeCollection("rooms", []Named{
		{"core", []any{map[string]any{"id": float64(1), "x": 1}}},
		{"mod", []any{map[string]any{"id": "1", "x": 2}}},
	}, Policy{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0]["id"])
	assert.Equal(t, 2, got[0]["x"])
}

func TestMergeCollection_DuplicateWithinLayerCollapses(t *testing.T) {
	got, err := MergeCollection("encounters", []Named{
		{"core", []any{
			map[string]any{"id": "1.a", "scale": 1},
			map[string]any{"id": "1.a", "scale": 2},
		}},
	}, Policy{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0]["scale"])
}

func TestMergeCollection_Mismatches(t *testing.T) {
	cases := map[string]any{
		"not a list":    map[string]any{"id": "1"},
		"not a mapping": []any{"1"},
		"missing id":    []any{map[string]any{"x": 1}},
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := MergeCollection("rooms", []Named{{"mod", value}}, Policy{})
			var sm *SchemaMismatchError
			require.True(t, errors.As(err, &sm), "got %v", err)
			assert.Equal(t, "mod", sm.Layer)
			assert.Contains(t, sm.Path, "rooms")
		})
	}
}

func TestSquash_NoLayers(t *testing.T) {
	_, err := Squash("all", nil, DefaultPolicies())
	var noData *NoDataError
	assert.True(t, errors.As(err, &noData))
}

func TestSquash_DefaultPolicyDoorsAdditive(t *testing.T) {
	core := Layer{Name: "core", Rooms: []any{map[string]any{"id": "1", "doors": []any{"2"}}}}
	mod := Layer{Name: "mod", Rooms: []any{map[string]any{"id": "1", "doors": []any{"5"}}}}
	got, err := Squash("all", []Layer{core, mod}, DefaultPolicies())
	require.NoError(t, err)
	rooms := got.Rooms.([]any)
	require.Len(t, rooms, 1)
	assert.Equal(t, []any{"2", "5"}, rooms[0].(map[string]any)["doors"])
	assert.Nil(t, got.Config)
}

func TestMerge_SkipsLayersWithoutPart(t *testing.T) {
	core := Layer{
		Name:   "core",
		Config: map[string]any{"dungeon_type": "rooms"},
		Lines:  []any{map[string]any{"id": "@1.a", "text": "core"}},
	}
	mod := Layer{
		Name:       "mod",
		Encounters: []any{map[string]any{"id": "1.a", "x": 3}},
		Lines:      []any{map[string]any{"id": "@1.a", "text": "mod"}, map[string]any{"id": "@1.b"}},
	}
	ds, err := Merge([]Layer{core, mod}, DefaultPolicies())
	require.NoError(t, err)
	assert.Equal(t, "rooms", ds.Config["dungeon_type"])
	assert.Nil(t, ds.Rooms)
	require.Len(t, ds.Encounters, 1)
	require.Len(t, ds.Lines, 2)
	assert.Equal(t, "mod", ds.Lines[0]["text"])
	assert.Equal(t, "@1.b", ds.Lines[1]["id"])
}

func TestMerge_MalformedLayer(t *testing.T) {
	bad := Layer{Name: "mod", Encounters: map[string]any{"id": "1.a"}}
	_, err := Merge([]Layer{{Name: "core"}, bad}, DefaultPolicies())
	var sm *SchemaMismatchError
	require.True(t, errors.As(err, &sm))
	assert.Equal(t, "mod", sm.Layer)
}

// genLayer draws a layer whose records reuse a small ID space so that merges
// overlap frequently.
func genLayer(name string) *rapid.Generator[Layer] {
	return rapid.Custom(func(t *rapid.T) Layer {
		l := Layer{Name: name}
		if rapid.Bool().Draw(t, "has_config") {
			l.Config = genObject(t, "config")
		}
		n := rapid.IntRange(0, 4).Draw(t, "rooms")
		if n > 0 {
			rooms := make([]any, n)
			for i := range rooms {
				rec := genObject(t, fmt.Sprintf("room%d", i))
				rec["id"] = rapid.SampledFrom([]string{"1", "2", "3", "4"}).Draw(t, "id")
				if rapid.Bool().Draw(t, "has_doors") {
					rec["doors"] = []any{rapid.SampledFrom([]any{"1", "2", "3"}).Draw(t, "door")}
				}
				rooms[i] = rec
			}
			l.Rooms = rooms
		}
		return l
	})
}

func genObject(t *rapid.T, label string) map[string]any {
	obj := make(map[string]any)
	keys := rapid.SliceOfN(rapid.SampledFrom([]string{"x", "y", "tag", "fog"}), 0, 3).Draw(t, label+"_keys")
	for _, k := range keys {
		if k == "fog" {
			obj[k] = map[string]any{"radius": rapid.IntRange(0, 5).Draw(t, label+"_radius")}
			continue
		}
		obj[k] = rapid.IntRange(0, 9).Draw(t, label+"_"+k)
	}
	return obj
}

// Property: squashing [A,B] then [AB,C] equals squashing [A,B,C].
func TestPropertySquashAssociative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genLayer("a").Draw(t, "a")
		b := genLayer("b").Draw(t, "b")
		c := genLayer("c").Draw(t, "c")
		pol := DefaultPolicies()

		ab, err := Squash("ab", []Layer{a, b}, pol)
		require.NoError(t, err)
		stepwise, err := Squash("abc", []Layer{ab, c}, pol)
		require.NoError(t, err)
		direct, err := Squash("abc", []Layer{a, b, c}, pol)
		require.NoError(t, err)

		assert.Equal(t, direct, stepwise)
	})
}

// Property: a merged collection never holds two records with the same ID.
func TestPropertyMergedIDsUnique(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		layers := rapid.SliceOfN(genLayer("l"), 1, 4).Draw(t, "layers")
		recs, err := MergeCollection("rooms", Collect(layers, RoomsPart), Policy{})
		require.NoError(t, err)
		seen := make(map[any]bool)
		for _, r := range recs {
			assert.False(t, seen[r["id"]], "duplicate id %v", r["id"])
			seen[r["id"]] = true
		}
	})
}
