package metrics

import (
	"log/slog"
)

// AuditLogger writes structured audit events for security-relevant actions:
// signature rejections and connection-gater denials. All methods are
// nil-safe, so callers can skip nil checks at every call site.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates an AuditLogger writing to handler. Every event is
// recorded under the "audit" group for easy filtering.
func NewAuditLogger(handler slog.Handler) *AuditLogger {
	return &AuditLogger{
		logger: slog.New(handler).WithGroup("audit"),
	}
}

// SignatureRejected logs a Transmission that failed signature verification.
func (a *AuditLogger) SignatureRejected(peerID string) {
	if a == nil {
		return
	}
	a.logger.Warn("signature_rejected",
		"peer", peerID,
	)
}

// CodecFailure logs an inbound frame that failed to decode.
func (a *AuditLogger) CodecFailure(peerID string) {
	if a == nil {
		return
	}
	a.logger.Warn("codec_failure",
		"peer", peerID,
	)
}

// GaterDenied logs a connection gater rejecting an unauthorized peer.
func (a *AuditLogger) GaterDenied(peerID, reason string) {
	if a == nil {
		return
	}
	a.logger.Warn("gater_denied",
		"peer", peerID,
		"reason", reason,
	)
}

// AuthChange logs an authorized_peers set change (add or remove).
func (a *AuditLogger) AuthChange(action, peerID string) {
	if a == nil {
		return
	}
	a.logger.Info("auth_change",
		"action", action,
		"peer", peerID,
	)
}
