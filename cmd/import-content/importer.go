package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonforge/internal/content"
	"github.com/cory-johannsen/dungeonforge/internal/layer"
)

// layerStore persists one layer of one dungeon.
type layerStore interface {
	SaveLayer(ctx context.Context, dungeonID string, l layer.Layer) error
}

type importer struct {
	files  content.Source
	repo   layerStore
	layers []string
	logger *zap.Logger
}

// Run imports every configured layer of dungeonID, or of every dungeon when
// dungeonID is empty. Each layer is loaded on its own so a layer without the
// dungeon is skipped rather than folded into another.
//
// Postcondition: Returns the number of layers saved.
func (imp *importer) Run(ctx context.Context, dungeonID string) (int, error) {
	ids := []string{dungeonID}
	if dungeonID == "" {
		var err error
		if ids, err = imp.files.ListDungeons(ctx, imp.layers); err != nil {
			return 0, err
		}
	}

	saved := 0
	for _, id := range ids {
		for _, name := range imp.layers {
			layers, err := imp.files.LoadLayers(ctx, id, []string{name})
			var nf *content.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			if err != nil {
				return saved, err
			}
			if err := imp.repo.SaveLayer(ctx, id, layers[0]); err != nil {
				return saved, fmt.Errorf("importing %s/%s: %w", name, id, err)
			}
			saved++
			imp.logger.Info("layer imported", zap.String("layer", name), zap.String("dungeon", id))
		}
	}
	return saved, nil
}
