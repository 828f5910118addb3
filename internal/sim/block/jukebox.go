package block

import (
	"context"

	"voxelhooks.dev/internal/sim/item"
	"voxelhooks.dev/internal/sim/level"
)

const (
	JukeboxID = "minecraft:jukebox"
	hasRecord = "has_record"
)

// SongIndex is the synced song registry as seen by the jukebox.
type SongIndex interface {
	IndexOf(key string) (int, bool)
}

type Jukebox struct {
	songs SongIndex
	log   Logger
}

func NewJukebox(songs SongIndex, log Logger) *Jukebox {
	return &Jukebox{songs: songs, log: orNop(log)}
}

// NormalUse only ever stops playback.
func (j *Jukebox) NormalUse(ctx context.Context, args UseArgs) ActionResult {
	was, now, err := updateToggle(ctx, args.World, args.Block, args.Pos, hasRecord, func(bool) bool { return false })
	if err != nil {
		j.log.Printf("jukebox %s: use: %v", args.Pos, err)
		return Continue
	}
	if was && !now {
		args.World.EmitWorldEvent(ctx, level.WorldEventJukeboxStopsPlaying, args.Pos, 0)
		return Consume
	}
	return Continue
}

func (j *Jukebox) UseWithItem(ctx context.Context, args UseWithItemArgs) ActionResult {
	// Lock order: the item is read and released before the world section is taken.
	key, linked, song, registered := j.resolve(ctx, args.Item)

	was, now, err := updateToggle(ctx, args.World, args.Block, args.Pos, hasRecord, func(on bool) bool {
		if on {
			return false
		}
		return registered
	})
	if err != nil {
		j.log.Printf("jukebox %s: use with item: %v", args.Pos, err)
		return Continue
	}

	switch {
	case was && !now:
		args.World.EmitWorldEvent(ctx, level.WorldEventJukeboxStopsPlaying, args.Pos, 0)
		return Consume
	case !was && now:
		args.World.EmitWorldEvent(ctx, level.WorldEventJukeboxStartsPlaying, args.Pos, int32(song))
		return Consume
	}
	if linked && !registered {
		j.log.Printf("ERROR jukebox %s: playable song %q not registered", args.Pos, key)
	}
	return Continue
}

// Broken always signals stop; clients ignore it when nothing plays.
func (j *Jukebox) Broken(ctx context.Context, args BrokenArgs) {
	args.World.EmitWorldEvent(ctx, level.WorldEventJukeboxStopsPlaying, args.Pos, 0)
}

// resolve returns the media key, whether the item links any media, and the
// key's registry index when it is registered.
func (j *Jukebox) resolve(ctx context.Context, stack *item.Stack) (key string, linked bool, index int, registered bool) {
	if stack == nil {
		return "", false, 0, false
	}
	d, err := stack.Descriptor(ctx)
	if err != nil {
		return "", false, 0, false
	}
	key, linked = d.MediaKey()
	if !linked {
		return "", false, 0, false
	}
	index, registered = j.songs.IndexOf(key)
	return key, true, index, registered
}
