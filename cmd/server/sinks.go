package main

import (
	"voxelhooks.dev/internal/plugin/event"
	"voxelhooks.dev/internal/sim/level"
)

type multiAuditLogger []level.AuditLogger

func (m multiAuditLogger) WriteAudit(entry level.AuditEntry) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteAudit(entry)
		}
	}
	return nil
}

type multiFailureSink []event.FailureSink

func (m multiFailureSink) ListenerFailed(f event.ListenerFailure) {
	for _, s := range m {
		if s != nil {
			s.ListenerFailed(f)
		}
	}
}
