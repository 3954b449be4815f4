package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/dungeonforge/internal/assets"
	"github.com/cory-johannsen/dungeonforge/internal/config"
	"github.com/cory-johannsen/dungeonforge/internal/content"
	"github.com/cory-johannsen/dungeonforge/internal/dungeon"
	"github.com/cory-johannsen/dungeonforge/internal/events"
	"github.com/cory-johannsen/dungeonforge/internal/layer"
	"github.com/cory-johannsen/dungeonforge/internal/scripting"
	"github.com/cory-johannsen/dungeonforge/internal/storage/postgres"
)

// readyTimeout bounds the content store check made at startup.
const readyTimeout = 5 * time.Second

// app wires a content source to compilers. Each compilation gets its own
// script resolver so dungeon state never leaks between dungeons; resolvers
// live as long as the app because compiled conditions call back into them.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	source content.Source
	assets dungeon.AssetProvider
	bus    *events.Bus
	pool   *postgres.Pool

	mu        sync.Mutex
	resolvers []*scripting.Resolver
}

// newApp builds the content source named by cfg.Content.Source.
//
// Postcondition: Returns an app or a non-nil error; the caller must Close it.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		assets: assets.NewFileProvider(cfg.Content.AssetsDir),
		bus:    events.NewBus(logger),
	}
	switch cfg.Content.Source {
	case config.SourcePostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to content database: %w", err)
		}
		if err := pool.Ready(ctx, readyTimeout); err != nil {
			pool.Close()
			return nil, err
		}
		a.pool = pool
		a.source = postgres.NewLayerRepository(pool.DB())
	default:
		a.source = content.NewFileSource(cfg.Content.Root, logger)
	}
	a.bus.Subscribe(dungeon.EventCreated, func(payload ...any) {
		if len(payload) == 0 {
			return
		}
		if d, ok := payload[0].(*dungeon.Dungeon); ok {
			logger.Debug("dungeon created", zap.String("dungeon", d.ID), zap.String("run_id", d.RunID.String()))
		}
	})
	return a, nil
}

// Close releases the script resolvers and the database pool, if any.
func (a *app) Close() {
	a.Release()
	if a.pool != nil {
		a.pool.Close()
	}
}

// Release closes the resolvers of every dungeon compiled so far. Those
// dungeons must not be used afterwards.
func (a *app) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, res := range a.resolvers {
		res.Close()
	}
	a.resolvers = nil
}

func (a *app) options() dungeon.Options {
	opts := dungeon.DefaultOptions()
	opts.RoomIconSize = a.cfg.Compiler.RoomIconSize
	opts.ImageScale = a.cfg.Compiler.ImageScale
	return opts
}

func (a *app) newResolver() (*scripting.Resolver, error) {
	res := scripting.NewResolver(a.cfg.Compiler.ScriptInstructionLimit, a.logger)
	if dir := a.cfg.Content.ScriptsDir; dir != "" {
		if err := res.LoadDir(dir); err != nil {
			res.Close()
			return nil, fmt.Errorf("loading scripts: %w", err)
		}
	}
	a.mu.Lock()
	a.resolvers = append(a.resolvers, res)
	a.mu.Unlock()
	return res, nil
}

// compile loads and compiles one dungeon.
func (a *app) compile(ctx context.Context, id string) (*dungeon.Dungeon, error) {
	layers, err := a.source.LoadLayers(ctx, id, a.cfg.Content.Layers())
	if err != nil {
		return nil, err
	}
	res, err := a.newResolver()
	if err != nil {
		return nil, err
	}
	return dungeon.NewCompiler(res, a.assets, a.bus, a.logger, a.options()).Compile(ctx, id, layers)
}

// CompileOne compiles dungeon id and writes its summary to w.
func (a *app) CompileOne(ctx context.Context, id string, w io.Writer) error {
	d, err := a.compile(ctx, id)
	if err != nil {
		return err
	}
	return writeSummary(w, d)
}

// CompileAll compiles every dungeon the source knows of, at most
// cfg.Compiler.Workers at a time, and writes summaries in ID order.
//
// Postcondition: Returns the first compilation error; the other
// compilations are cancelled.
func (a *app) CompileAll(ctx context.Context, w io.Writer) error {
	ids, err := a.source.ListDungeons(ctx, a.cfg.Content.Layers())
	if err != nil {
		return err
	}

	var mu sync.Mutex
	compiled := make(map[string]*dungeon.Dungeon, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.cfg.Compiler.Workers, 1))
	for _, id := range ids {
		g.Go(func() error {
			d, err := a.compile(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			compiled[id] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := writeSummary(w, compiled[id]); err != nil {
			return err
		}
	}
	a.logger.Info("compiled dungeons", zap.Int("count", len(ids)))
	return nil
}

// Dump writes the merged layer stack of dungeon id to w as YAML.
func (a *app) Dump(ctx context.Context, id string, w io.Writer) error {
	layers, err := a.source.LoadLayers(ctx, id, a.cfg.Content.Layers())
	if err != nil {
		return err
	}
	merged, err := layer.Squash(id, layers, layer.DefaultPolicies())
	if err != nil {
		return err
	}
	doc := map[string]any{}
	for key, part := range map[string]any{
		"config":     merged.Config,
		"rooms":      merged.Rooms,
		"encounters": merged.Encounters,
		"lines":      merged.Lines,
	} {
		if part != nil {
			doc[key] = part
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding merged layer: %w", err)
	}
	return enc.Close()
}

func writeSummary(w io.Writer, d *dungeon.Dungeon) error {
	_, err := fmt.Fprintf(w, "%s (%s) type=%s rooms=%d encounters=%d events=%d doors=%d start=%s\n",
		d.ID, d.Name(), d.Type,
		len(d.Rooms()), len(d.Encounters()), len(d.Events()), len(d.Doors()),
		startRoomID(d),
	)
	return err
}

func startRoomID(d *dungeon.Dungeon) string {
	if r := d.StartRoom(); r != nil {
		return r.ID
	}
	return "-"
}
