// Package privacylog wraps an slog.Handler so logs can mention users,
// threads and messages without leaking raw identifiers or credentials.
// Identifier attributes are replaced by a boot-scoped fingerprint that stays
// stable within one process, so log lines remain correlatable.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

var (
	bootNonce = randomNonce()

	// Identifier keys that must never appear in plain text.
	fingerprintedKeys = map[string]struct{}{
		"user_id":    {},
		"sender_id":  {},
		"target_id":  {},
		"peer_id":    {},
		"thread_id":  {},
		"message_id": {},
		"conn_id":    {},
	}
	sensitiveKeyParts = []string{"token", "secret", "password", "authorization", "auth", "email", "text"}
)

type sanitizingHandler struct {
	next slog.Handler
}

// WrapHandler returns a handler that sanitizes every record before passing
// it to next.
func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &sanitizingHandler{next: next}
}

func (h *sanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *sanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitized := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		sanitized = append(sanitized, SanitizeAttr(attr))
	}
	return &sanitizingHandler{next: h.next.WithAttrs(sanitized)}
}

func (h *sanitizingHandler) WithGroup(name string) slog.Handler {
	return &sanitizingHandler{next: h.next.WithGroup(name)}
}

// SanitizeAttr redacts credential-bearing attributes and fingerprints
// identifier attributes. Everything else passes through untouched.
func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	lowerKey := strings.ToLower(key)
	if isSensitiveKey(lowerKey) {
		return slog.String(key, redactedValue)
	}
	if _, ok := fingerprintedKeys[lowerKey]; ok {
		return slog.String(key+"_fp", FingerprintID(valueToString(attr.Value)))
	}
	return attr
}

// FingerprintID maps an identifier to a short digest salted with a nonce
// generated at process start. Not reversible, stable within one run.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func isSensitiveKey(key string) bool {
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func valueToString(v slog.Value) string {
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return fmt.Sprint(v.Any())
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
