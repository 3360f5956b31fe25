package main

import (
	"log/slog"

	"github.com/defiboxswap/DefiboxVault/core/events"
)

// logEmitter forwards engine events to the structured log so operators can
// follow state changes without a separate indexer.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if l.logger == nil || evt == nil {
		return
	}
	attrs := []any{slog.String("event", evt.EventType())}
	if typed, ok := evt.(*events.Typed); ok {
		for key, value := range typed.Attributes {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	l.logger.Info("vault event", attrs...)
}
