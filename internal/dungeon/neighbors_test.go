package dungeon

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonforge/internal/geometry"
)

// Angles must be usable by the encounter stage, before doors are built.
func TestLinkNeighbors_SetsAnglesBeforeDoorStage(t *testing.T) {
	r := &run{d: newDungeon("d", uuid.New()), logger: zap.NewNop()}
	r.d.iconSize = 64
	r.addRoom(&Room{ID: "1", Pos: geometry.Point{X: 0, Y: 0}})
	r.addRoom(&Room{ID: "2", Pos: geometry.Point{X: 200, Y: 0}})
	r.addRoom(&Room{ID: "3", Pos: geometry.Point{X: 200, Y: 200}})

	r.linkNeighbors(map[string][]string{"1": {"2"}, "2": {"3"}})
	require.Nil(t, r.d.doors)

	one, two, three := r.d.rooms["1"], r.d.rooms["2"], r.d.rooms["3"]
	n, ok := one.Neighbor("2")
	require.True(t, ok)
	assert.InDelta(t, 0, n.Angle, 1e-9)

	n, ok = two.Neighbor("1")
	require.True(t, ok)
	assert.InDelta(t, neighborAngle(two, one, 64), n.Angle, 1e-9)

	n, ok = three.Neighbor("2")
	require.True(t, ok)
	assert.InDelta(t, -90, n.Angle, 1e-9)
}

func TestBuildDoors_RefreshesMovedAngles(t *testing.T) {
	a := &Room{ID: "a", Pos: geometry.Point{X: 0, Y: 0}}
	b := &Room{ID: "b", Pos: geometry.Point{X: 200, Y: 0}}
	a.Neighbors = []Neighbor{{Room: b, Angle: neighborAngle(a, b, 64)}}
	b.Neighbors = []Neighbor{{Room: a, Angle: neighborAngle(b, a, 64)}}

	b.Pos = geometry.Point{X: 0, Y: 200}
	buildDoors([]*Room{a, b}, 64)

	assert.InDelta(t, neighborAngle(a, b, 64), a.Neighbors[0].Angle, 1e-9)
	assert.NotEqual(t, 0.0, a.Neighbors[0].Angle)
}
