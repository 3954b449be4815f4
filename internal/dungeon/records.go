package dungeon

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/cory-johannsen/dungeonforge/internal/geometry"
)

// ConfigRecord is the typed view of a merged dungeon config. Fields the
// compiler does not interpret are kept in Extra.
type ConfigRecord struct {
	Type       Type           `mapstructure:"dungeon_type"`
	Width      float64        `mapstructure:"width"`
	Height     float64        `mapstructure:"height"`
	Background string         `mapstructure:"background"`
	Scale      float64        `mapstructure:"scale"`
	StartRoom  string         `mapstructure:"start_room"`
	Fog        map[string]any `mapstructure:"fog"`
	OnCreate   map[string]any `mapstructure:"on_create"`
	Extra      map[string]any `mapstructure:",remain"`
}

// RoomRecord is the typed view of a merged room record.
type RoomRecord struct {
	ID     string         `mapstructure:"id"`
	X      float64        `mapstructure:"x"`
	Y      float64        `mapstructure:"y"`
	Fog    map[string]any `mapstructure:"fog"`
	Assets []string       `mapstructure:"assets"`
	Doors  []string       `mapstructure:"doors"`
	Params map[string]any `mapstructure:"params"`
	Extra  map[string]any `mapstructure:",remain"`
}

// EncounterRecord is the typed view of a merged encounter record.
type EncounterRecord struct {
	ID        string         `mapstructure:"id"`
	X         float64        `mapstructure:"x"`
	Y         float64        `mapstructure:"y"`
	Z         float64        `mapstructure:"z"`
	Scale     float64        `mapstructure:"scale"`
	Rotation  float64        `mapstructure:"rotation"`
	Image     string         `mapstructure:"image"`
	Polygon   [][]float64    `mapstructure:"polygon"`
	Condition string         `mapstructure:"condition"`
	Params    map[string]any `mapstructure:"params"`
	Extra     map[string]any `mapstructure:",remain"`
}

// fogRecord is the typed view of a merged fog block.
type fogRecord struct {
	Enabled bool           `mapstructure:"enabled"`
	Radius  float64        `mapstructure:"radius"`
	Opacity float64        `mapstructure:"opacity"`
	Extra   map[string]any `mapstructure:",remain"`
}

// decodeRecord decodes a generic record into out, converting numbers and
// strings where the target type asks for it.
func decodeRecord(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// polygon converts [[x, y], ...] pairs into points.
func polygon(id string, pairs [][]float64) ([]geometry.Point, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make([]geometry.Point, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("encounter %s: polygon vertex %d has %d coordinates, want 2", id, i, len(p))
		}
		out[i] = geometry.Point{X: p[0], Y: p[1]}
	}
	return out, nil
}
