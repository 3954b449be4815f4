package dungeon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonforge/internal/binding"
	"github.com/cory-johannsen/dungeonforge/internal/geometry"
	"github.com/cory-johannsen/dungeonforge/internal/layer"
	"github.com/cory-johannsen/dungeonforge/internal/lines"
)

// EventCreated is triggered with the *Dungeon after every successful
// compilation, including reloads of a saved game.
const EventCreated = "dungeon_created"

// descriptionSuffix names a room's description encounter: "<room>.description".
const descriptionSuffix = "." + lines.DescriptionSegment

// AssetProvider answers image-metadata queries.
type AssetProvider interface {
	ImageDimensions(ctx context.Context, path string) (width, height int, err error)
}

// Notifier receives named notifications.
type Notifier interface {
	Trigger(name string, payload ...any)
}

// Options tunes compilation.
type Options struct {
	// RoomIconSize is the shared edge length of a room icon.
	RoomIconSize float64
	// ImageScale scales background image dimensions unless the dungeon config
	// sets its own scale.
	ImageScale float64
	Policies   layer.Policies
}

// DefaultOptions returns a 64-unit room icon, unit scale, and the default
// merge policies.
func DefaultOptions() Options {
	return Options{
		RoomIconSize: 64,
		ImageScale:   1,
		Policies:     layer.DefaultPolicies(),
	}
}

// Compiler builds Dungeons from layer stacks. A Compiler holds no per-run
// state; Compile may be called concurrently for different dungeons when the
// resolver is safe for concurrent use.
type Compiler struct {
	resolver binding.Resolver
	assets   AssetProvider
	notifier Notifier
	logger   *zap.Logger
	opts     Options
}

// NewCompiler creates a Compiler.
//
// Precondition: resolver and logger must be non-nil; assets and notifier may
// be nil, in which case image lookups fail and no notification is sent.
// Postcondition: Zero option fields take their DefaultOptions values.
func NewCompiler(resolver binding.Resolver, assets AssetProvider, notifier Notifier, logger *zap.Logger, opts Options) *Compiler {
	def := DefaultOptions()
	if opts.RoomIconSize <= 0 {
		opts.RoomIconSize = def.RoomIconSize
	}
	if opts.ImageScale <= 0 {
		opts.ImageScale = def.ImageScale
	}
	if opts.Policies.Room.Additive == nil && opts.Policies.Room.Keyed == nil {
		opts.Policies.Room = def.Policies.Room
	}
	return &Compiler{
		resolver: resolver,
		assets:   assets,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

// run carries the state of one compilation.
type run struct {
	c      *Compiler
	ctx    context.Context
	layers []layer.Layer
	d      *Dungeon
	logger *zap.Logger
}

// Compile merges layers and builds the dungeon graph in strictly ordered
// stages: config, geometry inputs, rooms, encounters, doors, content lines,
// and the creation hook.
//
// Precondition: layers[0] is the base layer.
// Postcondition: Returns a complete Dungeon, or a *LoadError naming the
// failed stage and no Dungeon.
func (c *Compiler) Compile(ctx context.Context, dungeonID string, layers []layer.Layer) (*Dungeon, error) {
	runID := uuid.New()
	r := &run{
		c:      c,
		ctx:    ctx,
		layers: layers,
		d:      newDungeon(dungeonID, runID),
		logger: c.logger.With(
			zap.String("dungeon", dungeonID),
			zap.String("run_id", runID.String()),
		),
	}
	r.d.iconSize = c.opts.RoomIconSize

	stages := []struct {
		stage Stage
		fn    func() error
	}{
		{StageConfig, r.loadConfig},
		{StageGeometry, r.loadGeometry},
		{StageRooms, r.buildRooms},
		{StageEncounters, r.buildEncounters},
		{StageDoors, r.buildDoors},
		{StageContent, r.bindContent},
		{StageCreate, r.create},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, &LoadError{Dungeon: dungeonID, Stage: s.stage, Err: err}
		}
		if err := s.fn(); err != nil {
			r.logger.Error("dungeon load failed",
				zap.String("stage", string(s.stage)),
				zap.Error(err),
			)
			return nil, &LoadError{Dungeon: dungeonID, Stage: s.stage, Err: err}
		}
	}

	r.logger.Info("dungeon compiled",
		zap.String("type", string(r.d.Type)),
		zap.Int("rooms", len(r.d.roomOrder)),
		zap.Int("encounters", len(r.d.encounterOrder)),
		zap.Int("events", len(r.d.events)),
		zap.Int("doors", len(r.d.doors)),
	)
	return r.d, nil
}

func (r *run) loadConfig() error {
	merged, err := layer.MergeObjects(layer.Collect(r.layers, layer.ConfigPart), r.c.opts.Policies.Config)
	if err != nil {
		return err
	}
	var cfg ConfigRecord
	if err := decodeRecord(merged, &cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	if !cfg.Type.Valid() {
		return fmt.Errorf("unrecognised dungeon type %q", cfg.Type)
	}
	r.d.Config = cfg
	r.d.Type = cfg.Type
	r.d.Scale = cfg.Scale
	if r.d.Scale <= 0 {
		r.d.Scale = r.c.opts.ImageScale
	}
	return nil
}

func (r *run) loadGeometry() error {
	cfg := r.d.Config
	switch r.d.Type {
	case TypeText:
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return errors.New("text dungeon needs positive width and height")
		}
		r.d.Width, r.d.Height = cfg.Width, cfg.Height
	case TypeMap:
		if cfg.Width > 0 && cfg.Height > 0 {
			r.d.Width, r.d.Height = cfg.Width, cfg.Height
			return nil
		}
		return r.backgroundSize()
	case TypeScreen:
		return r.backgroundSize()
	}
	return nil
}

// backgroundSize sizes the dungeon from its background image. This is the
// only stage that waits on an external lookup.
func (r *run) backgroundSize() error {
	bg := r.d.Config.Background
	if bg == "" {
		return fmt.Errorf("%s dungeon needs a background image", r.d.Type)
	}
	if r.c.assets == nil {
		return fmt.Errorf("no asset provider for background %q", bg)
	}
	w, h, err := r.c.assets.ImageDimensions(r.ctx, bg)
	if err != nil {
		return fmt.Errorf("background %q: %w", bg, err)
	}
	r.d.Width = float64(w) * r.d.Scale
	r.d.Height = float64(h) * r.d.Scale
	return nil
}

func (r *run) buildRooms() error {
	if r.d.Type == TypeScreen {
		if n := countRecords(r.layers, layer.RoomsPart); n > 0 {
			r.logger.Debug("screen dungeon discards authored rooms", zap.Int("records", n))
		}
		fog, err := r.fog(nil)
		if err != nil {
			return err
		}
		r.addRoom(&Room{ID: ScreenRoomID, Fog: fog, Anchors: map[string]string{}})
		return nil
	}

	items := layer.Collect(r.layers, layer.RoomsPart)
	if len(items) == 0 {
		return nil
	}
	recs, err := layer.MergeCollection("rooms", items, r.c.opts.Policies.Room)
	if err != nil {
		return err
	}

	doors := make(map[string][]string, len(recs))
	for _, rec := range recs {
		var rr RoomRecord
		if err := decodeRecord(rec, &rr); err != nil {
			return fmt.Errorf("room %v: %w", rec[layer.IDField], err)
		}
		fog, err := r.fog(rr.Fog)
		if err != nil {
			return fmt.Errorf("room %s: %w", rr.ID, err)
		}
		r.addRoom(&Room{
			ID:      rr.ID,
			Pos:     geometry.Point{X: rr.X, Y: rr.Y},
			Fog:     fog,
			Assets:  rr.Assets,
			Anchors: map[string]string{},
			Params:  r.compileParams(rr.Params, "room", rr.ID),
			Extra:   rr.Extra,
		})
		doors[rr.ID] = rr.Doors
	}
	r.linkNeighbors(doors)
	return nil
}

func (r *run) addRoom(room *Room) {
	r.d.rooms[room.ID] = room
	r.d.roomOrder = append(r.d.roomOrder, room)
}

// fog merges a room's fog override onto the dungeon-level fog defaults.
func (r *run) fog(override map[string]any) (Fog, error) {
	var objs []layer.Named
	if r.d.Config.Fog != nil {
		objs = append(objs, layer.Named{Layer: "dungeon", Value: r.d.Config.Fog})
	}
	if override != nil {
		objs = append(objs, layer.Named{Layer: "room", Value: override})
	}
	if len(objs) == 0 {
		return Fog{}, nil
	}
	merged, err := layer.MergeObjects(objs, layer.Policy{})
	if err != nil {
		return Fog{}, err
	}
	var fr fogRecord
	if err := decodeRecord(merged, &fr); err != nil {
		return Fog{}, fmt.Errorf("decoding fog: %w", err)
	}
	return Fog{Enabled: fr.Enabled, Radius: fr.Radius, Opacity: fr.Opacity, Extra: fr.Extra}, nil
}

// linkNeighbors makes adjacency symmetric: a door declared by either room
// links both, with the angle toward the neighbour already set. Unknown
// targets are logged and skipped.
func (r *run) linkNeighbors(doors map[string][]string) {
	linked := make(map[[2]string]bool)
	link := func(a, b *Room) {
		if linked[[2]string{a.ID, b.ID}] {
			return
		}
		linked[[2]string{a.ID, b.ID}] = true
		a.Neighbors = append(a.Neighbors, Neighbor{Room: b, Angle: neighborAngle(a, b, r.d.iconSize)})
	}
	for _, room := range r.d.roomOrder {
		for _, id := range doors[room.ID] {
			if id == room.ID {
				continue
			}
			other, ok := r.d.rooms[id]
			if !ok {
				r.logger.Warn("door targets unknown room; skipping",
					zap.String("room", room.ID),
					zap.String("neighbor", id),
				)
				continue
			}
			link(room, other)
			link(other, room)
		}
	}
}

func (r *run) buildEncounters() error {
	items := layer.Collect(r.layers, layer.EncountersPart)
	if len(items) == 0 {
		return nil
	}
	recs, err := layer.MergeCollection("encounters", items, r.c.opts.Policies.Encounter)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		var er EncounterRecord
		if err := decodeRecord(rec, &er); err != nil {
			return fmt.Errorf("encounter %v: %w", rec[layer.IDField], err)
		}
		room := r.owningRoom(er.ID)
		if room == nil {
			r.logger.Warn("encounter references unknown room; skipping",
				zap.String("encounter", er.ID),
				zap.String("room", leadingSegment(er.ID)),
			)
			continue
		}
		poly, err := polygon(er.ID, er.Polygon)
		if err != nil {
			return err
		}
		enc := &Encounter{
			ID:   er.ID,
			Room: room,
			Transform: Transform{
				X: er.X, Y: er.Y, Z: er.Z,
				Scale:    er.Scale,
				Rotation: er.Rotation,
			},
			Visual: Visual{Image: er.Image, Polygon: poly},
			Params: r.compileParams(er.Params, "encounter", er.ID),
			Extra:  er.Extra,
		}
		if enc.Transform.Scale <= 0 {
			enc.Transform.Scale = 1
		}
		enc.InverseScale = 1 / (r.d.Scale * enc.Transform.Scale)
		if er.Condition != "" {
			pred, err := r.c.resolver.CompileCondition(er.Condition)
			if err != nil {
				r.logger.Warn("encounter visibility condition does not compile; always visible",
					zap.String("encounter", er.ID),
					zap.Error(err),
				)
			} else {
				enc.Visible = pred
			}
		}
		r.addEncounter(enc)
	}
	return nil
}

func (r *run) addEncounter(enc *Encounter) {
	r.d.encounters[enc.ID] = enc
	r.d.encounterOrder = append(r.d.encounterOrder, enc)
}

// owningRoom resolves the room an encounter or line belongs to from the
// leading segment of id. Every ID belongs to the screen room of a screen
// dungeon.
func (r *run) owningRoom(id string) *Room {
	if r.d.Type == TypeScreen {
		return r.d.rooms[ScreenRoomID]
	}
	return r.d.rooms[leadingSegment(id)]
}

func (r *run) buildDoors() error {
	r.d.doors = buildDoors(r.d.roomOrder, r.d.iconSize)
	return nil
}

func (r *run) bindContent() error {
	items := layer.Collect(r.layers, layer.LinesPart)
	if len(items) == 0 {
		return nil
	}
	recs, err := layer.MergeCollection("lines", items, r.c.opts.Policies.Line)
	if err != nil {
		return err
	}
	all := lines.FromRecords(recs, r.logger)
	r.d.lines = lines.NewTable(all)
	res := lines.Classify(r.d.lines.Lines(), r.logger)

	// Lines first: text dungeons create rooms that events and anchors refer to.
	r.bindLines(res.Content)
	r.bindAnchors(res.Anchors)
	r.bindEvents(res.Events)
	r.bindChoices(res.Choices)
	r.resequence(res.Order)
	return nil
}

func (r *run) bindEvents(decls []lines.EventDecl) {
	for _, decl := range decls {
		trigger, err := r.compileTrigger(decl.Conditions)
		if err != nil {
			r.logger.Warn("event condition does not compile; skipping",
				zap.String("event", decl.ID),
				zap.Error(err),
			)
			continue
		}
		ev := &Event{
			ID:         decl.ID,
			Repeatable: decl.Repeatable,
			Trigger:    trigger,
			Params:     decl.Params,
		}
		for _, id := range decl.AllRooms() {
			room := r.lineRoom(id)
			if room == nil {
				r.logger.Warn("event references unknown room; skipping room",
					zap.String("event", decl.ID),
					zap.String("room", id),
				)
				continue
			}
			if containsRoom(ev.Rooms, room) {
				continue
			}
			ev.Rooms = append(ev.Rooms, room)
			room.Events = append(room.Events, ev)
		}
		if len(ev.Rooms) == 0 {
			continue
		}
		ev.Room = ev.Rooms[0]
		r.d.events = append(r.d.events, ev)
	}
}

// compileTrigger compiles an any-of condition list into one predicate.
func (r *run) compileTrigger(conds []string) (binding.Predicate, error) {
	preds := make([]binding.Predicate, 0, len(conds))
	for _, c := range conds {
		p, err := r.c.resolver.CompileCondition(c)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return func() bool {
		for _, p := range preds {
			if p() {
				return true
			}
		}
		return false
	}, nil
}

// lineRoom resolves a room ID named by a content line.
func (r *run) lineRoom(id string) *Room {
	if r.d.Type == TypeScreen {
		return r.d.rooms[ScreenRoomID]
	}
	return r.d.rooms[id]
}

func (r *run) bindLines(decls []lines.ContentDecl) {
	for _, decl := range decls {
		room := r.lineRoom(decl.Room)
		if decl.Description {
			if room == nil {
				r.logger.Warn("description for unknown room; skipping",
					zap.String("line", decl.Line.ID),
					zap.String("room", decl.Room),
				)
				continue
			}
			if room.Description == nil {
				room.Description = &Encounter{
					ID:           decl.Room + descriptionSuffix,
					Room:         room,
					Transform:    Transform{Scale: 1},
					InverseScale: 1 / r.d.Scale,
					Synthesized:  true,
				}
			}
			room.Description.Content = append(room.Description.Content, decl.Line)
			continue
		}

		enc, ok := r.d.encounters[decl.Encounter]
		if !ok {
			if r.d.Type != TypeText {
				r.logger.Warn("content for unknown encounter; skipping",
					zap.String("line", decl.Line.ID),
					zap.String("encounter", decl.Encounter),
				)
				continue
			}
			if room == nil {
				room = &Room{ID: decl.Room, Anchors: map[string]string{}}
				r.addRoom(room)
			}
			enc = &Encounter{
				ID:           decl.Encounter,
				Room:         room,
				Transform:    Transform{Scale: 1},
				InverseScale: 1 / r.d.Scale,
				Synthesized:  true,
			}
			r.addEncounter(enc)
		}
		enc.Content = append(enc.Content, decl.Line)
	}
}

func (r *run) bindAnchors(decls []lines.AnchorDecl) {
	for _, decl := range decls {
		room := r.lineRoom(decl.Room)
		if room == nil {
			r.logger.Warn("anchor for unknown room; skipping",
				zap.String("line", decl.Line.ID),
				zap.String("room", decl.Room),
			)
			continue
		}
		room.Anchors[decl.Name] = decl.Line.Text
	}
}

// bindChoices attaches queued choice lines to encounters and room
// descriptions. A choice line no encounter claims is logged.
func (r *run) bindChoices(queued []lines.Line) {
	if len(queued) == 0 {
		return
	}
	targets := make([]*Encounter, 0, len(r.d.encounterOrder)+len(r.d.roomOrder))
	targets = append(targets, r.d.encounterOrder...)
	for _, room := range r.d.roomOrder {
		if room.Description != nil {
			targets = append(targets, room.Description)
		}
	}

	bound := make(map[string]bool, len(queued))
	for _, enc := range targets {
		for _, decl := range lines.Bind(enc.ID, queued, r.d.lines) {
			if bound[decl.Line.ID] {
				continue
			}
			bound[decl.Line.ID] = true
			enc.Choices = append(enc.Choices, &Choice{
				ID:        decl.ID,
				Name:      decl.Name,
				Encounter: enc,
				Params:    r.compileParams(decl.Params, "choice", decl.ID),
			})
		}
	}
	for _, l := range queued {
		if !bound[l.ID] {
			r.logger.Warn("choice has no encounter; skipping", zap.String("line", l.ID))
		}
	}
}

// resequence rebuilds the encounter order: encounters in first-content-line
// order, then the rest in merge order.
func (r *run) resequence(order []string) {
	out := make([]*Encounter, 0, len(r.d.encounterOrder))
	placed := make(map[string]bool, len(r.d.encounterOrder))
	for _, id := range order {
		if enc, ok := r.d.encounters[id]; ok && !placed[id] {
			placed[id] = true
			out = append(out, enc)
		}
	}
	for _, enc := range r.d.encounterOrder {
		if !placed[enc.ID] {
			out = append(out, enc)
		}
	}
	r.d.encounterOrder = out
}

func (r *run) create() error {
	if len(r.d.Config.OnCreate) > 0 {
		p, err := r.c.resolver.CompileParams(r.d.Config.OnCreate)
		if err != nil {
			r.logger.Warn("on_create does not compile; skipping", zap.Error(err))
		} else if err := r.c.resolver.ResolveActions(r.ctx, p); err != nil {
			r.logger.Warn("on_create failed", zap.Error(err))
		}
	}
	if r.c.notifier != nil {
		r.c.notifier.Trigger(EventCreated, r.d)
	}
	return nil
}

// compileParams compiles a raw parameter block. A block that does not compile
// is logged and kept uncompiled.
func (r *run) compileParams(raw map[string]any, kind, id string) binding.Params {
	if len(raw) == 0 {
		return binding.Params{Raw: raw}
	}
	p, err := r.c.resolver.CompileParams(raw)
	if err != nil {
		r.logger.Warn("params do not compile; keeping raw",
			zap.String(kind, id),
			zap.Error(err),
		)
		return binding.Params{Raw: raw}
	}
	return p
}

func countRecords(layers []layer.Layer, part layer.Part) int {
	n := 0
	for _, it := range layer.Collect(layers, part) {
		if list, ok := it.Value.([]any); ok {
			n += len(list)
		}
	}
	return n
}

func containsRoom(rooms []*Room, room *Room) bool {
	for _, r := range rooms {
		if r == room {
			return true
		}
	}
	return false
}

func leadingSegment(id string) string {
	head, _, _ := strings.Cut(id, ".")
	return head
}
