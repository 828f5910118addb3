package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// AirID is always palette entry 0.
const AirID = "minecraft:air"

type Catalogs struct {
	Blocks BlockCatalog
	Items  ItemCatalog

	// Synced registries: indices are sent to clients and must match on both ends.
	Songs SongCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID         string        `json:"id"`
	Properties []PropertyDef `json:"properties,omitempty"`
	Breakable  bool          `json:"breakable"`
	DropsItem  string        `json:"drops_item,omitempty"`
	Exp        uint32        `json:"exp,omitempty"`
}

type PropertyDef struct {
	Name    string   `json:"name"`
	Values  []string `json:"values"`
	Default string   `json:"default,omitempty"`
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID       string `json:"id"`
	MaxStack int    `json:"max_stack,omitempty"`
	PlaceAs  string `json:"place_as,omitempty"`
	// JukeboxPlayable links a disc to a song as "<namespace>:<key>".
	JukeboxPlayable string `json:"jukebox_playable,omitempty"`
}

type SongCatalog struct {
	Registry Registry
	Defs     map[string]SongDef
	Digest   string
}

type SongDef struct {
	ID               string  `json:"id"`
	SoundEvent       string  `json:"sound_event"`
	LengthSeconds    float64 `json:"length_seconds"`
	ComparatorOutput int     `json:"comparator_output"`
}

// Registry maps keys to stable indices.
type Registry struct {
	Keys   []string
	Index  map[string]int
	Digest string
}

// NewRegistry keeps the given key order; duplicates keep their first index.
func NewRegistry(keys []string) Registry {
	r := Registry{
		Keys:  make([]string, 0, len(keys)),
		Index: make(map[string]int, len(keys)),
	}
	for _, k := range keys {
		if _, dup := r.Index[k]; dup {
			continue
		}
		r.Index[k] = len(r.Keys)
		r.Keys = append(r.Keys, k)
	}
	b, _ := json.Marshal(r.Keys)
	r.Digest = sha256Hex(b)
	return r
}

func (r Registry) IndexOf(key string) (int, bool) {
	i, ok := r.Index[key]
	return i, ok
}

func (r Registry) Len() int { return len(r.Keys) }

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadSongs(filepath.Join(configDir, "jukebox_songs.json"), &c.Songs); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	if err := BuildBlocks(defs, out); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.DefsDigest = sha256Hex(raw)
	return nil
}

// BuildBlocks validates defs and fills the palette. Air is forced to index 0.
func BuildBlocks(defs []BlockDef, out *BlockCatalog) error {
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("duplicate id %s", d.ID)
		}
		if err := validateProperties(d); err != nil {
			return err
		}
		out.Defs[d.ID] = d
	}
	if _, ok := out.Defs[AirID]; !ok {
		return fmt.Errorf("missing %s", AirID)
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		if id != AirID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	ids = append([]string{AirID}, ids...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func validateProperties(d BlockDef) error {
	seen := map[string]struct{}{}
	for _, p := range d.Properties {
		if p.Name == "" {
			return fmt.Errorf("%s: property with empty name", d.ID)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%s: duplicate property %s", d.ID, p.Name)
		}
		seen[p.Name] = struct{}{}
		if len(p.Values) == 0 {
			return fmt.Errorf("%s.%s: no values", d.ID, p.Name)
		}
		if p.Default != "" && indexOf(p.Values, p.Default) < 0 {
			return fmt.Errorf("%s.%s: default %q not in values", d.ID, p.Name, p.Default)
		}
	}
	return nil
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if d.JukeboxPlayable != "" && !strings.Contains(d.JukeboxPlayable, ":") {
			return fmt.Errorf("items.json: %s: jukebox_playable %q is not namespaced", d.ID, d.JukeboxPlayable)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadSongs(path string, out *SongCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		// A server without discs is valid; the registry is just empty.
		if os.IsNotExist(err) {
			out.Defs = map[string]SongDef{}
			out.Registry = NewRegistry(nil)
			out.Digest = out.Registry.Digest
			return nil
		}
		return err
	}
	var defs []SongDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("jukebox_songs.json: %w", err)
	}
	out.Defs = map[string]SongDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("jukebox_songs.json: empty id")
		}
		if strings.Contains(d.ID, ":") {
			return fmt.Errorf("jukebox_songs.json: id %q must be a bare key", d.ID)
		}
		out.Defs[d.ID] = d
	}
	keys := make([]string, 0, len(out.Defs))
	for k := range out.Defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out.Registry = NewRegistry(keys)
	out.Digest = out.Registry.Digest
	return nil
}

func indexOf(in []string, v string) int {
	for i, s := range in {
		if s == v {
			return i
		}
	}
	return -1
}
