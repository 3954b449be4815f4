package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/dungeonforge/internal/content"
	"github.com/cory-johannsen/dungeonforge/internal/layer"
)

// Record kinds stored in content_records.
const (
	kindRooms      = "rooms"
	kindEncounters = "encounters"
)

// LayerRepository stores per-layer dungeon datasets as JSONB rows, keeping
// authored record and line order.
type LayerRepository struct {
	db *pgxpool.Pool
}

var _ content.Source = (*LayerRepository)(nil)

// NewLayerRepository creates a LayerRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewLayerRepository(db *pgxpool.Pool) *LayerRepository {
	return &LayerRepository{db: db}
}

// SaveLayer replaces everything stored for layer l of dungeonID with l's
// contents, in one transaction.
//
// Precondition: l.Name and dungeonID must be non-empty.
// Postcondition: Returns *layer.SchemaMismatchError when a part of l is
// malformed; nothing is written in that case.
func (r *LayerRepository) SaveLayer(ctx context.Context, dungeonID string, l layer.Layer) error {
	if l.Name == "" || dungeonID == "" {
		return errors.New("saving layer: layer name and dungeon ID must be non-empty")
	}

	var cfg map[string]any
	if l.Config != nil {
		var ok bool
		if cfg, ok = l.Config.(map[string]any); !ok {
			return &layer.SchemaMismatchError{Layer: l.Name, Path: "config", Want: "mapping", Got: fmt.Sprintf("%T", l.Config)}
		}
	}
	rooms, err := normalize(l.Name, kindRooms, l.Rooms)
	if err != nil {
		return err
	}
	encounters, err := normalize(l.Name, kindEncounters, l.Encounters)
	if err != nil {
		return err
	}
	lines, err := normalize(l.Name, "lines", l.Lines)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, table := range []string{"content_configs", "content_records", "content_lines"} {
		batch.Queue(`DELETE FROM `+table+` WHERE layer = $1 AND dungeon = $2`, l.Name, dungeonID)
	}
	if cfg != nil {
		batch.Queue(
			`INSERT INTO content_configs (layer, dungeon, body) VALUES ($1, $2, $3)`,
			l.Name, dungeonID, cfg,
		)
	}
	for _, set := range []struct {
		kind string
		recs []layer.Record
	}{{kindRooms, rooms}, {kindEncounters, encounters}} {
		for i, rec := range set.recs {
			batch.Queue(
				`INSERT INTO content_records (layer, dungeon, kind, position, id, body)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				l.Name, dungeonID, set.kind, i, rec[layer.IDField], rec,
			)
		}
	}
	for i, rec := range lines {
		batch.Queue(
			`INSERT INTO content_lines (layer, dungeon, position, id, body)
			 VALUES ($1, $2, $3, $4, $5)`,
			l.Name, dungeonID, i, rec[layer.IDField], rec,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving layer %s of dungeon %s: %w", l.Name, dungeonID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing layer %s of dungeon %s: %w", l.Name, dungeonID, err)
	}
	return nil
}

// normalize validates a record list and collapses duplicate IDs the same way
// a merge would.
func normalize(layerName, field string, v any) ([]layer.Record, error) {
	if v == nil {
		return nil, nil
	}
	return layer.MergeCollection(field, []layer.Named{{Layer: layerName, Value: v}}, layer.Policy{})
}

// LoadLayer reads one stored layer of dungeonID.
//
// Postcondition: found is false when nothing is stored for the pair.
func (r *LayerRepository) LoadLayer(ctx context.Context, name, dungeonID string) (l layer.Layer, found bool, err error) {
	l.Name = name

	var cfg map[string]any
	err = r.db.QueryRow(ctx,
		`SELECT body FROM content_configs WHERE layer = $1 AND dungeon = $2`,
		name, dungeonID,
	).Scan(&cfg)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return layer.Layer{}, false, fmt.Errorf("loading config of %s/%s: %w", name, dungeonID, err)
	default:
		l.Config = cfg
		found = true
	}

	rows, err := r.db.Query(ctx,
		`SELECT kind, body FROM content_records
		 WHERE layer = $1 AND dungeon = $2
		 ORDER BY kind, position`,
		name, dungeonID,
	)
	if err != nil {
		return layer.Layer{}, false, fmt.Errorf("loading records of %s/%s: %w", name, dungeonID, err)
	}
	var rooms, encounters []any
	for rows.Next() {
		var kind string
		var body map[string]any
		if err := rows.Scan(&kind, &body); err != nil {
			rows.Close()
			return layer.Layer{}, false, fmt.Errorf("scanning record: %w", err)
		}
		if kind == kindRooms {
			rooms = append(rooms, body)
		} else {
			encounters = append(encounters, body)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return layer.Layer{}, false, fmt.Errorf("iterating records: %w", err)
	}
	if rooms != nil {
		l.Rooms, found = rooms, true
	}
	if encounters != nil {
		l.Encounters, found = encounters, true
	}

	lineRows, err := r.db.Query(ctx,
		`SELECT body FROM content_lines
		 WHERE layer = $1 AND dungeon = $2
		 ORDER BY position`,
		name, dungeonID,
	)
	if err != nil {
		return layer.Layer{}, false, fmt.Errorf("loading lines of %s/%s: %w", name, dungeonID, err)
	}
	bodies, err := pgx.CollectRows(lineRows, pgx.RowTo[map[string]any])
	if err != nil {
		return layer.Layer{}, false, fmt.Errorf("scanning lines: %w", err)
	}
	if len(bodies) > 0 {
		list := make([]any, len(bodies))
		for i, b := range bodies {
			list[i] = b
		}
		l.Lines, found = list, true
	}
	return l, found, nil
}

// LoadLayers reads the named layers of dungeonID, skipping layers with no
// stored data.
//
// Postcondition: Returns *content.NotFoundError when no layer has the dungeon.
func (r *LayerRepository) LoadLayers(ctx context.Context, dungeonID string, names []string) ([]layer.Layer, error) {
	var out []layer.Layer
	for _, name := range names {
		l, found, err := r.LoadLayer(ctx, name, dungeonID)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return nil, &content.NotFoundError{Dungeon: dungeonID, Layers: names}
	}
	return out, nil
}

// ListDungeons returns the sorted IDs of dungeons stored in any named layer.
func (r *LayerRepository) ListDungeons(ctx context.Context, names []string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT dungeon FROM content_configs WHERE layer = ANY($1)
		 UNION SELECT dungeon FROM content_records WHERE layer = ANY($1)
		 UNION SELECT dungeon FROM content_lines WHERE layer = ANY($1)
		 ORDER BY dungeon`,
		names,
	)
	if err != nil {
		return nil, fmt.Errorf("listing dungeons: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning dungeon IDs: %w", err)
	}
	return ids, nil
}
