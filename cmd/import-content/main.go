// Package main provides import-content, which copies file-based content
// layers into the PostgreSQL content store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonforge/internal/config"
	"github.com/cory-johannsen/dungeonforge/internal/content"
	"github.com/cory-johannsen/dungeonforge/internal/observability"
	"github.com/cory-johannsen/dungeonforge/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	sourceDir := flag.String("source", "", "content root to import (default: content.root from config)")
	dungeonID := flag.String("dungeon", "", "import only this dungeon (default: all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *sourceDir == "" {
		*sourceDir = cfg.Content.Root
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ready(ctx, 5*time.Second); err != nil {
		logger.Fatal("content store not ready", zap.Error(err))
	}

	start := time.Now()
	imp := &importer{
		files:  content.NewFileSource(*sourceDir, logger),
		repo:   postgres.NewLayerRepository(pool.DB()),
		layers: cfg.Content.Layers(),
		logger: logger,
	}
	n, err := imp.Run(ctx, *dungeonID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("imported %d layers in %s\n", n, time.Since(start).Round(time.Millisecond))
}
