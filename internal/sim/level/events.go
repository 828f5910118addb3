package level

import "time"

// WorldEventKind identifies a client-visible, non-persisted effect.
type WorldEventKind int32

const (
	WorldEventLeverToggled         WorldEventKind = 1000
	WorldEventJukeboxStartsPlaying WorldEventKind = 1010
	WorldEventJukeboxStopsPlaying  WorldEventKind = 1011
	WorldEventBlockBroken          WorldEventKind = 2001
)

var worldEventNames = map[WorldEventKind]string{
	WorldEventLeverToggled:         "LEVER_TOGGLED",
	WorldEventJukeboxStartsPlaying: "JUKEBOX_STARTS_PLAYING",
	WorldEventJukeboxStopsPlaying:  "JUKEBOX_STOPS_PLAYING",
	WorldEventBlockBroken:          "BLOCK_BROKEN",
}

func (k WorldEventKind) String() string {
	if s, ok := worldEventNames[k]; ok {
		return s
	}
	return "UNKNOWN"
}

type WorldEvent struct {
	Kind    WorldEventKind
	Pos     BlockPos
	Payload int32
	At      time.Time
}

// EventSink receives world events after the emitting section has been released.
type EventSink interface {
	WorldEvent(ev WorldEvent)
}

// BlockUpdateSink receives state changes written with NotifyListeners.
type BlockUpdateSink interface {
	BlockUpdated(u BlockUpdate)
}

type BlockUpdate struct {
	Pos  BlockPos
	From uint16
	To   uint16
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"` // e.g. "SET_BLOCK"
	Pos    [3]int    `json:"pos"`
	From   uint16    `json:"from"`
	To     uint16    `json:"to"`
	Flags  uint8     `json:"flags,omitempty"`
	Reason string    `json:"reason,omitempty"`
}
