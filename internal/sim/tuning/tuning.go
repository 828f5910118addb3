package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	World  World  `yaml:"world"`
	Events Events `yaml:"events"`
	WS     WS     `yaml:"ws"`

	// Digest is the sha256 of the file as read; empty for Defaults.
	Digest string `yaml:"-"`
}

type World struct {
	MinY      int `yaml:"min_y"`
	Height    int `yaml:"height"`
	BoundaryR int `yaml:"boundary_r"`
}

type Events struct {
	// ListenerTimeoutMs bounds each listener call; 0 disables the bound.
	ListenerTimeoutMs int `yaml:"listener_timeout_ms"`
}

type WS struct {
	MaxQueue int `yaml:"max_queue"`
}

func Defaults() Tuning {
	return Tuning{
		World:  World{MinY: -64, Height: 384, BoundaryR: 30000},
		Events: Events{ListenerTimeoutMs: 50},
		WS:     WS{MaxQueue: 64},
	}
}

// Load reads path over Defaults, so omitted keys keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	sum := sha256.Sum256(raw)
	t.Digest = hex.EncodeToString(sum[:])
	return t, nil
}

func (t Tuning) Validate() error {
	if t.World.Height <= 0 {
		return fmt.Errorf("world.height must be > 0, got %d", t.World.Height)
	}
	if t.World.Height%16 != 0 {
		return fmt.Errorf("world.height must be a multiple of 16, got %d", t.World.Height)
	}
	if t.World.BoundaryR < 0 {
		return fmt.Errorf("world.boundary_r must be >= 0, got %d", t.World.BoundaryR)
	}
	if t.Events.ListenerTimeoutMs < 0 {
		return fmt.Errorf("events.listener_timeout_ms must be >= 0, got %d", t.Events.ListenerTimeoutMs)
	}
	if t.WS.MaxQueue <= 0 {
		return fmt.Errorf("ws.max_queue must be > 0, got %d", t.WS.MaxQueue)
	}
	return nil
}

func (e Events) ListenerTimeout() time.Duration {
	return time.Duration(e.ListenerTimeoutMs) * time.Millisecond
}
