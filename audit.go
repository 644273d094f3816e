package finauth

import (
	"io"
	"log/slog"

	internalaudit "github.com/rfol/finauth/internal/audit"
)

// AuditEvent is one security-relevant outcome. It never carries passwords,
// raw emails, session ids or reset tokens.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

type (
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	SlogSink       = internalaudit.SlogSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogAuditSink logs events through logger; nil selects slog.Default.
func NewSlogAuditSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
