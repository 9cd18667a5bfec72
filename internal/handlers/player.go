package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nowplaying/playerapi/internal/broker"
	"github.com/nowplaying/playerapi/internal/logging"
	"github.com/nowplaying/playerapi/internal/models"
	"github.com/nowplaying/playerapi/internal/player"
)

// PlayerHandler serves the player status endpoints.
type PlayerHandler struct {
	source player.Source
	broker *broker.Broker
}

// NewPlayerHandler creates a PlayerHandler reading from source and
// registering event streams with b.
func NewPlayerHandler(source player.Source, b *broker.Broker) *PlayerHandler {
	return &PlayerHandler{source: source, broker: b}
}

// Status returns the current player status as JSON.
func (h *PlayerHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, models.NewPlayerStatusResponse(h.source.Snapshot()))
}

// Lyric returns the full lyric text of the current track.
func (h *PlayerHandler) Lyric(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, h.source.Snapshot().Lyric)
}

// Forbidden rejects every path the API does not serve.
func (h *PlayerHandler) Forbidden(w http.ResponseWriter, r *http.Request) {
	logging.LogSecurityEvent(r.Context(), logging.SecurityEventRejectedPath, "rejected request")
	writeText(w, http.StatusUnauthorized, "Forbidden")
}

// Subscribe opens an SSE stream. The client first receives one event per
// status field, then one event per changed field for as long as it stays
// connected or until the server stops.
func (h *PlayerHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// The connection idle timeout must not cut a long-lived stream.
	rc := http.NewResponseController(w)
	if err := rc.SetReadDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.DebugContext(r.Context(), "failed to clear read deadline", slog.String("error", err.Error()))
	}

	sub, err := h.broker.Subscribe(w, func() player.Delta {
		return h.source.Snapshot().Changes()
	})
	if err != nil {
		writeText(w, http.StatusServiceUnavailable, "Service Unavailable")
		return
	}

	ctx := logging.WithSubscriberID(r.Context(), sub.ID)
	slog.DebugContext(ctx, "subscriber connected", logging.RequestFields(ctx)...)

	select {
	case <-ctx.Done():
	case <-sub.Done():
	}

	h.broker.Unsubscribe(sub)
	slog.DebugContext(ctx, "subscriber disconnected", logging.RequestFields(ctx)...)
}
