// Package content reads per-layer dungeon datasets from their storage form.
package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonforge/internal/layer"
)

// dungeonsDir is the directory under each layer holding one directory per
// dungeon.
const dungeonsDir = "dungeons"

// Part file base names.
const (
	ConfigFile     = "config"
	RoomsFile      = "rooms"
	EncountersFile = "encounters"
	LinesFile      = "lines"
)

// extensions lists accepted part file extensions in lookup order.
var extensions = []string{".yaml", ".yml", ".json"}

// Source loads the layer stack of one dungeon.
type Source interface {
	// LoadLayers returns the layers named by names that carry data for
	// dungeonID, in the order of names.
	LoadLayers(ctx context.Context, dungeonID string, names []string) ([]layer.Layer, error)
	// ListDungeons returns the sorted, de-duplicated IDs of dungeons present
	// in any of the named layers.
	ListDungeons(ctx context.Context, names []string) ([]string, error)
}

// NotFoundError reports a dungeon absent from every layer.
type NotFoundError struct {
	Dungeon string
	Layers  []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dungeon %q not found in layers %v", e.Dungeon, e.Layers)
}

// FileSource reads layers laid out as
// <root>/<layer>/dungeons/<dungeon>/{config,rooms,encounters,lines}.{yaml,yml,json}.
type FileSource struct {
	root   string
	logger *zap.Logger
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a FileSource over root.
//
// Precondition: logger must be non-nil.
func NewFileSource(root string, logger *zap.Logger) *FileSource {
	return &FileSource{root: root, logger: logger}
}

// LoadLayers reads the part files of dungeonID in each named layer. A layer
// without a directory for the dungeon is skipped; every part file is optional.
//
// Postcondition: Returns *NotFoundError when no layer has the dungeon, or the
// first read or decode error wrapped with its file path.
func (s *FileSource) LoadLayers(ctx context.Context, dungeonID string, names []string) ([]layer.Layer, error) {
	var out []layer.Layer
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := filepath.Join(s.root, name, dungeonsDir, dungeonID)
		info, err := os.Stat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("layer has no data for dungeon",
				zap.String("layer", name),
				zap.String("dungeon", dungeonID),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading layer %s: %w", name, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("layer %s: %s is not a directory", name, dir)
		}
		l, err := LoadLayerDir(name, dir)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, &NotFoundError{Dungeon: dungeonID, Layers: names}
	}
	return out, nil
}

// ListDungeons lists dungeon directories across the named layers.
func (s *FileSource) ListDungeons(ctx context.Context, names []string) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(filepath.Join(s.root, name, dungeonsDir))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("listing layer %s: %w", name, err)
		}
		for _, e := range entries {
			if e.IsDir() && !seen[e.Name()] {
				seen[e.Name()] = true
				ids = append(ids, e.Name())
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadLayerDir reads one layer's part files from dir.
//
// Postcondition: Absent part files leave the matching Layer field nil.
func LoadLayerDir(name, dir string) (layer.Layer, error) {
	l := layer.Layer{Name: name}
	parts := []struct {
		base string
		dst  *any
	}{
		{ConfigFile, &l.Config},
		{RoomsFile, &l.Rooms},
		{EncountersFile, &l.Encounters},
	}
	for _, p := range parts {
		data, path, err := readPart(dir, p.base)
		if err != nil {
			return layer.Layer{}, err
		}
		if data == nil {
			continue
		}
		v, err := DecodeDocument(data)
		if err != nil {
			return layer.Layer{}, fmt.Errorf("parsing %s: %w", path, err)
		}
		*p.dst = v
	}

	data, path, err := readPart(dir, LinesFile)
	if err != nil {
		return layer.Layer{}, err
	}
	if data != nil {
		recs, err := DecodeLines(name, data)
		if err != nil {
			return layer.Layer{}, fmt.Errorf("parsing %s: %w", path, err)
		}
		if recs != nil {
			l.Lines = recs
		}
	}
	return l, nil
}

// readPart returns the contents of the first existing <base><ext> in dir, or
// nil data when none exists.
func readPart(dir, base string) ([]byte, string, error) {
	for _, ext := range extensions {
		path := filepath.Join(dir, base+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, path, fmt.Errorf("reading %s: %w", path, err)
		}
		return data, path, nil
	}
	return nil, "", nil
}
