// Package main provides dungeonc, the dungeon content compiler. It merges
// the configured content layers for one dungeon (or all of them), compiles
// the result into a dungeon graph, and prints a summary.
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
	"github.com/cory-johannsen/dungeonforge/internal/observability"
	"github.com/cory-johannsen/dungeonforge/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	dungeonID := flag.String("dungeon", "", "dungeon ID to compile")
	all := flag.Bool("all", false, "compile every dungeon found in the configured layers")
	dump := flag.Bool("dump", false, "print the merged layer as YAML instead of compiling")
	watch := flag.Duration("watch", 0, "recompile at this interval until interrupted (0 = once)")
	flag.Parse()

	if (*dungeonID == "" && !*all) || (*dump && *dungeonID == "") {
		fmt.Fprintln(os.Stderr, "usage: dungeonc -config <file> (-dungeon <id> | -all) [-dump] [-watch <interval>]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("initializing compiler", zap.Error(err))
	}
	defer app.Close()

	job := func(ctx context.Context) error {
		app.Release()
		if *dump {
			return app.Dump(ctx, *dungeonID, os.Stdout)
		}
		if *all {
			return app.CompileAll(ctx, os.Stdout)
		}
		return app.CompileOne(ctx, *dungeonID, os.Stdout)
	}

	if *watch > 0 {
		lc := server.NewLifecycle(logger)
		lc.Add("recompiler", server.Every(*watch, logger, job))
		if err := lc.Run(ctx); err != nil {
			logger.Fatal("watch stopped", zap.Error(err))
		}
		return
	}

	if err := job(ctx); err != nil {
		logger.Error("compilation failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		os.Exit(1)
	}
	logger.Info("done", zap.Duration("elapsed", time.Since(start)))
}
