package main

import (
	"context"
	"fmt"
	"sort"

	"voxelhooks.dev/internal/command/args"
	"voxelhooks.dev/internal/protocol"
	"voxelhooks.dev/internal/sim/block"
	"voxelhooks.dev/internal/sim/blockstate"
	"voxelhooks.dev/internal/sim/catalogs"
	"voxelhooks.dev/internal/sim/entity"
	"voxelhooks.dev/internal/sim/interact"
	"voxelhooks.dev/internal/sim/item"
	"voxelhooks.dev/internal/sim/level"
)

const jukeboxCommandName = "jukebox"

// jukeboxCommand implements "jukebox <x> <y> <z> <song>": it makes sure a
// jukebox stands at the position and inserts the disc for song.
type jukeboxCommand struct {
	pipeline *args.Pipeline
	engine   *interact.Engine
	world    *level.World
	codec    *blockstate.Codec
	// discs maps a song key to the item that plays it.
	discs map[string]catalogs.ItemDef
}

type jukeboxResult struct {
	Pos    [3]int `json:"pos"`
	Song   string `json:"song"`
	Index  int    `json:"index"`
	Placed bool   `json:"placed"`
	Result string `json:"result"`
}

func newJukeboxCommand(engine *interact.Engine, w *level.World, codec *blockstate.Codec, cats *catalogs.Catalogs) (*jukeboxCommand, error) {
	p, err := args.NewPipeline(
		args.Param{Consumer: args.NewBlockPosConsumer()},
		args.Param{Consumer: args.NewSongConsumer(cats.Songs.Registry)},
	)
	if err != nil {
		return nil, err
	}
	if _, ok := codec.Block(block.JukeboxID); !ok {
		return nil, fmt.Errorf("block catalog has no %s", block.JukeboxID)
	}
	discs := map[string]catalogs.ItemDef{}
	ids := make([]string, 0, len(cats.Items.Defs))
	for id := range cats.Items.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		def := cats.Items.Defs[id]
		if def.JukeboxPlayable == "" {
			continue
		}
		key := item.Descriptor{ID: def.ID, JukeboxPlayable: def.JukeboxPlayable}
		if k, ok := key.MediaKey(); ok && k != "" {
			if _, dup := discs[k]; !dup {
				discs[k] = def
			}
		}
	}
	return &jukeboxCommand{pipeline: p, engine: engine, world: w, codec: codec, discs: discs}, nil
}

func (c *jukeboxCommand) Hints() protocol.CommandHintsMsg {
	return protocol.CommandHintsMsg{
		Type:            protocol.TypeCommandHints,
		ProtocolVersion: protocol.Version,
		Command:         jukeboxCommandName,
		Args:            c.pipeline.Hints(),
	}
}

func (c *jukeboxCommand) Suggest(ctx context.Context, sender args.Sender, name, input string) ([]protocol.Suggestion, error) {
	return c.pipeline.Suggest(ctx, sender, name, input)
}

func (c *jukeboxCommand) Run(ctx context.Context, sender args.Sender, actor entity.Actor, line string) (jukeboxResult, error) {
	consumed, err := c.pipeline.Parse(ctx, sender, line)
	if err != nil {
		return jukeboxResult{}, err
	}
	pos, err := args.FindBlockPos(consumed, "block_pos")
	if err != nil {
		return jukeboxResult{}, err
	}
	song, err := args.FindSong(consumed, "song")
	if err != nil {
		return jukeboxResult{}, err
	}
	out := jukeboxResult{Pos: pos.ToArray(), Song: song.Key, Index: song.Index}

	def, ok := c.discs[song.Key]
	if !ok {
		return out, fmt.Errorf("%w: no disc plays %q", args.ErrUnknownKey, song.Key)
	}

	placed, err := c.ensureJukebox(ctx, pos)
	if err != nil {
		return out, err
	}
	out.Placed = placed

	res, err := c.engine.UseBlockWithItem(ctx, actor, item.NewStack(def, 1), pos)
	if err != nil {
		return out, err
	}
	out.Result = res.Result.String()
	if res.Cancelled {
		out.Result = "CANCELLED"
	}
	return out, nil
}

func (c *jukeboxCommand) ensureJukebox(ctx context.Context, pos level.BlockPos) (bool, error) {
	jb, _ := c.codec.Block(block.JukeboxID)
	placed := false
	err := c.world.Update(level.WithActor(ctx, "console"), pos, func(s *level.Section) error {
		if jb.Owns(s.State()) {
			return nil
		}
		id, err := jb.Encode(nil)
		if err != nil {
			return err
		}
		s.Set(id, level.NotifyNeighbors|level.NotifyListeners)
		placed = true
		return nil
	})
	return placed, err
}
