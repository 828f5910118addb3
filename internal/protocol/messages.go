package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	BlockUpdates bool `json:"block_updates,omitempty"`
	MaxQueue     int  `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	ChunkSize int `json:"chunk_size"`
	MinY      int `json:"min_y"`
	Height    int `json:"height"`
	BoundaryR int `json:"boundary_r"`
}

// CatalogDigests lets a client check that its synced registries match the
// server's before it trusts any index on the wire.
type CatalogDigests struct {
	BlockPalette DigestRef `json:"block_palette"`
	ItemPalette  DigestRef `json:"item_palette"`
	JukeboxSongs DigestRef `json:"jukebox_songs"`
	TuningDigest string    `json:"tuning_digest,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// COMMAND_HINTS (server -> client)
type CommandHintsMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Command         string         `json:"command"`
	Args            []ArgumentHint `json:"args"`
}

// WORLD_EVENT (server -> client)
type WorldEventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Event           int32  `json:"event"`
	Name            string `json:"name"`
	Pos             [3]int `json:"pos"`
	Data            int32  `json:"data"`
	TimeMS          int64  `json:"time_ms"`
}

// BLOCK_UPDATE (server -> client)
type BlockUpdateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Pos             [3]int `json:"pos"`
	From            uint16 `json:"from"`
	To              uint16 `json:"to"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
