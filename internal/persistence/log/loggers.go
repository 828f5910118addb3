package log

import (
	"path/filepath"
	"time"

	"voxelhooks.dev/internal/plugin/event"
	"voxelhooks.dev/internal/sim/level"
)

type Logger interface {
	Printf(format string, v ...any)
}

// AuditLogger records every block write made inside a world section.
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(dataDir string, opts WriterOptions) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit", opts)}
}

func (l *AuditLogger) WriteAudit(e level.AuditEntry) error { return l.w.Write(e) }
func (l *AuditLogger) Close() error                        { return l.w.Close() }

type WorldEventRecord struct {
	Time  time.Time `json:"time"`
	Event int32     `json:"event"`
	Name  string    `json:"name"`
	Pos   [3]int    `json:"pos"`
	Data  int32     `json:"data"`
}

func NewWorldEventRecord(ev level.WorldEvent) WorldEventRecord {
	return WorldEventRecord{
		Time:  ev.At,
		Event: int32(ev.Kind),
		Name:  ev.Kind.String(),
		Pos:   ev.Pos.ToArray(),
		Data:  ev.Payload,
	}
}

// WorldEventLogger is a level.EventSink. World events have no error path, so
// write failures go to the logger.
type WorldEventLogger struct {
	w   *JSONLZstdWriter
	log Logger
}

func NewWorldEventLogger(dataDir string, opts WriterOptions, log Logger) *WorldEventLogger {
	return &WorldEventLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "events"), "events", opts), log: log}
}

func (l *WorldEventLogger) WorldEvent(ev level.WorldEvent) {
	if err := l.w.Write(NewWorldEventRecord(ev)); err != nil && l.log != nil {
		l.log.Printf("world event log: %v", err)
	}
}

func (l *WorldEventLogger) Close() error { return l.w.Close() }

// FailureLogger is an event.FailureSink.
type FailureLogger struct {
	w   *JSONLZstdWriter
	log Logger
}

func NewFailureLogger(dataDir string, opts WriterOptions, log Logger) *FailureLogger {
	return &FailureLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "listeners"), "failures", opts), log: log}
}

func (l *FailureLogger) ListenerFailed(f event.ListenerFailure) {
	if err := l.w.Write(f); err != nil && l.log != nil {
		l.log.Printf("listener failure log: %v", err)
	}
}

func (l *FailureLogger) Close() error { return l.w.Close() }
