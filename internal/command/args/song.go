package args

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"voxelhooks.dev/internal/protocol"
	"voxelhooks.dev/internal/sim/catalogs"
)

const defaultNamespace = "minecraft"

// SongConsumer reads one "<key>" or "minecraft:<key>" token naming a
// registered jukebox song.
type SongConsumer struct {
	songs catalogs.Registry
	keys  []string // sorted, for suggestions
}

func NewSongConsumer(songs catalogs.Registry) *SongConsumer {
	keys := append([]string(nil), songs.Keys...)
	sort.Strings(keys)
	return &SongConsumer{songs: songs, keys: keys}
}

func (*SongConsumer) Arity() int          { return 1 }
func (*SongConsumer) DefaultName() string { return "song" }

func (*SongConsumer) ClientParser() protocol.ArgumentParser {
	return protocol.ParserResourceKey("minecraft:jukebox_song")
}

func (*SongConsumer) SuggestionProvider() (protocol.SuggestionProvider, bool) {
	return protocol.SuggestAskServer, true
}

func (c *SongConsumer) Consume(_ context.Context, _ Sender, raw *RawArgs) (Arg, error) {
	m := raw.Mark()
	tok, ok := raw.Pop()
	if !ok {
		return nil, fmt.Errorf("%w: expected a song", ErrParse)
	}
	key, err := splitKey(tok)
	if err != nil {
		raw.Reset(m)
		return nil, err
	}
	idx, ok := c.songs.IndexOf(key)
	if !ok {
		raw.Reset(m)
		return nil, fmt.Errorf("%w: song %q", ErrUnknownKey, tok)
	}
	return SongArg{Key: key, Index: idx}, nil
}

// Suggest lists registered songs matching the typed prefix. It stops with
// ctx.Err() once the command is abandoned.
func (c *SongConsumer) Suggest(ctx context.Context, _ Sender, input string) ([]protocol.Suggestion, error) {
	prefix, namespaced := strings.CutPrefix(input, defaultNamespace+":")
	out := []protocol.Suggestion{}
	for _, k := range c.keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		text := k
		if namespaced {
			text = defaultNamespace + ":" + k
		}
		out = append(out, protocol.Suggestion{Text: text})
	}
	return out, nil
}

func splitKey(tok string) (string, error) {
	ns, key, found := strings.Cut(tok, ":")
	if !found {
		key, ns = tok, defaultNamespace
	}
	if key == "" || strings.ContainsAny(key, ": ") {
		return "", fmt.Errorf("%w: song %q", ErrParse, tok)
	}
	if ns != defaultNamespace {
		return "", fmt.Errorf("%w: song %q", ErrUnknownKey, tok)
	}
	return key, nil
}
