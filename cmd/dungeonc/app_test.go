package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/dungeonforge/internal/config"
	"github.com/cory-johannsen/dungeonforge/internal/content"
	"github.com/cory-johannsen/dungeonforge/internal/dungeon"
)

// devConfig loads the shipped development config, pointed at the repository
// content.
func devConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "dev.yaml"))
	require.NoError(t, err)
	cfg.Content.Root = filepath.Join("..", "..", "content")
	cfg.Content.ScriptsDir = filepath.Join("..", "..", "scripts")
	cfg.Content.AssetsDir = t.TempDir()
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) (*app, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	a, err := newApp(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, logs
}

func TestApp_CompileOne(t *testing.T) {
	a, logs := newTestApp(t, devConfig(t))
	var out bytes.Buffer
	require.NoError(t, a.CompileOne(context.Background(), "crypt", &out))

	assert.Equal(t,
		"crypt (The Sunken Crypt) type=rooms rooms=4 encounters=3 events=1 doors=3 start=1\n",
		out.String())
	assert.Equal(t, 1, logs.FilterMessage("dungeon created").Len())
}

func TestApp_CompileUsesModOverlay(t *testing.T) {
	a, _ := newTestApp(t, devConfig(t))
	d, err := a.compile(context.Background(), "crypt")
	require.NoError(t, err)

	stairs, err := d.Encounter("3.stairs")
	require.NoError(t, err)
	assert.Equal(t, "The stairs are flooded to the knee.", stairs.Text())

	room1, err := d.Room("1")
	require.NoError(t, err)
	assert.Equal(t, 60.0, room1.Fog.Radius)
	require.NotNil(t, room1.Description)

	// on_create from the mod leaves a single torch, so the scripted helper
	// keeps the sarcophagus visible.
	sarc, err := d.Encounter("2.sarcophagus")
	require.NoError(t, err)
	assert.True(t, sarc.IsVisible())
}

func TestApp_CompileWithoutMods(t *testing.T) {
	cfg := devConfig(t)
	cfg.Content.Mods = nil
	a, _ := newTestApp(t, cfg)

	var out bytes.Buffer
	require.NoError(t, a.CompileOne(context.Background(), "crypt", &out))
	assert.Contains(t, out.String(), "rooms=3")
	assert.Contains(t, out.String(), "doors=2")
}

func TestApp_CompileAll(t *testing.T) {
	a, logs := newTestApp(t, devConfig(t))
	var out bytes.Buffer
	require.NoError(t, a.CompileAll(context.Background(), &out))

	summaries := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, summaries, 2)
	assert.True(t, strings.HasPrefix(summaries[0], "crypt "))
	assert.True(t, strings.HasPrefix(summaries[1], "gate (The Iron Gate) type=text rooms=1 encounters=1"))
	assert.Equal(t, 1, logs.FilterMessage("compiled dungeons").Len())
}

func TestApp_CompileAllStopsOnFailure(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "core", "dungeons", "broken")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rooms.yaml"), []byte("id: not-a-list\n"), 0o644))

	cfg := devConfig(t)
	cfg.Content.Root = root
	cfg.Content.Mods = nil
	a, _ := newTestApp(t, cfg)

	err := a.CompileAll(context.Background(), &bytes.Buffer{})
	var le *dungeon.LoadError
	require.True(t, errors.As(err, &le), "got %v", err)
	assert.Equal(t, "broken", le.Dungeon)
}

func TestApp_UnknownDungeon(t *testing.T) {
	a, _ := newTestApp(t, devConfig(t))
	err := a.CompileOne(context.Background(), "nowhere", &bytes.Buffer{})
	var nf *content.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestApp_BadScriptsDir(t *testing.T) {
	cfg := devConfig(t)
	cfg.Content.ScriptsDir = filepath.Join(t.TempDir(), "missing")
	a, _ := newTestApp(t, cfg)
	err := a.CompileOne(context.Background(), "crypt", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading scripts")
}

func TestApp_Dump(t *testing.T) {
	a, _ := newTestApp(t, devConfig(t))
	var out bytes.Buffer
	require.NoError(t, a.Dump(context.Background(), "crypt", &out))

	dumped := out.String()
	assert.Contains(t, dumped, "radius: 60")
	assert.Contains(t, dumped, "opacity: 0.8")
	assert.Contains(t, dumped, "The stairs are flooded to the knee.")
	assert.NotContains(t, dumped, "Stairs spiral down")
}

func TestApp_ReleaseDropsResolvers(t *testing.T) {
	a, _ := newTestApp(t, devConfig(t))
	require.NoError(t, a.CompileOne(context.Background(), "crypt", &bytes.Buffer{}))
	require.Len(t, a.resolvers, 1)

	a.Release()
	assert.Empty(t, a.resolvers)
	require.NoError(t, a.CompileOne(context.Background(), "crypt", &bytes.Buffer{}))
	assert.Len(t, a.resolvers, 1)
}
