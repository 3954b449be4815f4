package lines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dungeonforge/internal/layer"
)

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestParseID(t *testing.T) {
	id, ok := ParseID("!1.main.A")
	require.True(t, ok)
	assert.Equal(t, Choice, id.Directive)
	assert.Equal(t, []string{"1", "main", "A"}, id.Segments)
	assert.Equal(t, "1.main.A", id.Body())
	assert.Equal(t, "1", id.Room())
	assert.True(t, id.HasSegments(3))
	assert.False(t, id.HasSegments(4))

	for _, bad := range []string{"", "1.main", "$dungeon_name", "%x.y"} {
		_, ok := ParseID(bad)
		assert.False(t, ok, "%q should not parse", bad)
	}
}

func TestParseID_EmptySegmentNotCounted(t *testing.T) {
	id, ok := ParseID("@1..x")
	require.True(t, ok)
	assert.False(t, id.HasSegments(2))
}

// Property: ParseID and String round-trip for every directive.
func TestPropertyParseIDRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := rapid.SampledFrom([]Directive{Event, Content, Choice, Anchor}).Draw(t, "directive")
		segs := rapid.SliceOfN(rapid.StringMatching(`[a-z0-9_~]{1,6}`), 1, 5).Draw(t, "segments")
		raw := ID{Directive: d, Segments: segs}.String()
		id, ok := ParseID(raw)
		if !ok {
			t.Fatalf("ParseID(%q) failed", raw)
		}
		assert.Equal(t, raw, id.String())
		assert.Equal(t, segs, id.Segments)
	})
}

func TestSplitEncounterID(t *testing.T) {
	room, sub, ok := SplitEncounterID("1.main")
	require.True(t, ok)
	assert.Equal(t, "1", room)
	assert.Equal(t, "main", sub)

	_, _, ok = SplitEncounterID("lonely")
	assert.False(t, ok)
}

func TestFromRecords_SkipsBadShapes(t *testing.T) {
	logger, logs := newObservedLogger()
	got := FromRecords([]layer.Record{
		{"id": "@1.a", "text": "fine"},
		{"id": "@1.b", "text": 42},
		{"id": "@1.c", "params": "nope"},
		{"id": "@1.d", "params": map[string]any{"condition": "true"}},
	}, logger)
	require.Len(t, got, 2)
	assert.Equal(t, "@1.a", got[0].ID)
	assert.Equal(t, "@1.d", got[1].ID)
	assert.Equal(t, 2, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestTable_LaterDuplicateWinsKeepsPosition(t *testing.T) {
	tbl := NewTable([]Line{
		{ID: "a", Text: "one"},
		{ID: "b", Text: "two"},
		{ID: "a", Text: "three"},
	})
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "three", tbl.Text("a"))
	assert.Equal(t, "a", tbl.Lines()[0].ID)
	assert.Equal(t, "", tbl.Text("missing"))
	assert.False(t, tbl.Has("missing"))
}

func TestClassify_Events(t *testing.T) {
	logger, logs := newObservedLogger()
	res := Classify([]Line{
		{ID: "#2.ambush", Params: map[string]any{"condition": "state.noisy", "rooms": " 3, 4 ,", "repeat": true}},
		{ID: "#3.chime", Params: map[string]any{"any": []any{"state.a", "state.b"}}},
		{ID: "#1.main~A.1.1.1", Text: "a scene line, no condition"},
		{ID: "#nodot", Params: map[string]any{"condition": "true"}},
	}, logger)

	require.Len(t, res.Events, 2)
	ev := res.Events[0]
	assert.Equal(t, "2.ambush", ev.ID)
	assert.Equal(t, "2", ev.Room)
	assert.Equal(t, []string{"3", "4"}, ev.Rooms)
	assert.Equal(t, []string{"2", "3", "4"}, ev.AllRooms())
	assert.Equal(t, []string{"state.noisy"}, ev.Conditions)
	assert.True(t, ev.Repeatable)

	assert.Equal(t, []string{"state.a", "state.b"}, res.Events[1].Conditions)
	assert.False(t, res.Events[1].Repeatable)
	assert.Equal(t, 1, logs.FilterMessageSnippet("event line").Len())
}

func TestClassify_ContentAndOrder(t *testing.T) {
	logger, _ := newObservedLogger()
	res := Classify([]Line{
		{ID: "@1.description", Text: "A damp cellar."},
		{ID: "@1.a", Text: "A rat."},
		{ID: "@1.b", Text: "A barrel."},
		{ID: "@1.a.2", Text: "The rat squeaks."},
		{ID: "^1.enter", Text: "You duck under the beam."},
		{ID: "!1.a.flee", Text: "Flee"},
		{ID: "%legacy", Text: "ignored"},
		{ID: "$dungeon_name", Text: "The Cellar"},
	}, logger)

	require.Len(t, res.Content, 4)
	assert.True(t, res.Content[0].Description)
	assert.Equal(t, "1", res.Content[0].Room)
	assert.Equal(t, "1.a", res.Content[1].Encounter)
	assert.Equal(t, "1.a.2", res.Content[3].Encounter)
	assert.Equal(t, []string{"1.a", "1.b", "1.a.2"}, res.Order)

	require.Len(t, res.Anchors, 1)
	assert.Equal(t, "enter", res.Anchors[0].Name)
	require.Len(t, res.Choices, 1)
	assert.Equal(t, "!1.a.flee", res.Choices[0].ID)
}

func TestClassify_MalformedLinesSkipped(t *testing.T) {
	logger, logs := newObservedLogger()
	res := Classify([]Line{
		{ID: "@solo"},
		{ID: "!1.main"},
		{ID: "^1"},
	}, logger)
	assert.Empty(t, res.Content)
	assert.Empty(t, res.Choices)
	assert.Empty(t, res.Anchors)
	assert.Equal(t, 3, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Go North", Title("__Default__:go_north.extra"))
	assert.Equal(t, "Open The Door", Title("__Default__:open_the_door"))
	assert.Equal(t, "Open NPC Door", Title("__Default__:open_NPC_door"))
	assert.Equal(t, "Über Gate", Title("__Default__:über_gate"))
	assert.Equal(t, "Run away!", Title("Run away!"))
	assert.Equal(t, "__Default__:", Title("__Default__:"))
}

func TestSceneID(t *testing.T) {
	id, _ := ParseID("!1.main.A")
	assert.Equal(t, "#1.main~A.1.1.1", SceneID(id))
}

func TestBind_NoActionNoSceneLine(t *testing.T) {
	choices := []Line{{ID: "!1.main.A", Text: "Leave", Params: map[string]any{"condition": "true"}}}
	got := Bind("1.main", choices, NewTable(choices))
	require.Len(t, got, 1)
	assert.Equal(t, "Leave", got[0].Name)
	_, hasScene := got[0].Params[ParamScene]
	assert.False(t, hasScene)
}

func TestBind_SynthesizesSceneWhenLineExists(t *testing.T) {
	choice := Line{ID: "!1.main.A", Text: "__Default__:go_north.extra"}
	table := NewTable([]Line{choice, {ID: "#1.main~A.1.1.1", Text: "You head north."}})
	got := Bind("1.main", []Line{choice}, table)
	require.Len(t, got, 1)
	assert.Equal(t, "1.main.A", got[0].ID)
	assert.Equal(t, "Go North", got[0].Name)
	assert.Equal(t, "#1.main~A.1.1.1", got[0].Params[ParamScene])
	assert.Nil(t, choice.Params, "source line params must not be modified")
}

func TestBind_ExplicitActionKeepsParams(t *testing.T) {
	choice := Line{ID: "!1.main.A", Params: map[string]any{"action": "state.x = 1"}}
	table := NewTable([]Line{choice, {ID: "#1.main~A.1.1.1"}})
	got := Bind("1.main", []Line{choice}, table)
	require.Len(t, got, 1)
	_, hasScene := got[0].Params[ParamScene]
	assert.False(t, hasScene)
	assert.Equal(t, "state.x = 1", got[0].Params[ParamAction])
}

func TestBind_SegmentMatchAndOrder(t *testing.T) {
	choices := []Line{
		{ID: "!1.main.B"},
		{ID: "!1.mainhall.X"},
		{ID: "!1.main.A.deep"},
		{ID: "!2.main.A"},
		{ID: "!1.main.C"},
	}
	got := Bind("1.main", choices, NewTable(choices))
	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"1.main.B", "1.main.A.deep", "1.main.C"}, ids)
	assert.Nil(t, Bind("solo", choices, nil))
}
