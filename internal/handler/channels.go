// Package handler provides the read-only dashboard API: current ground
// truth, changelog history and the audit trail.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/groundcrew-ai/alignment-engine/internal/middleware"
	"github.com/groundcrew-ai/alignment-engine/internal/model"
	"github.com/groundcrew-ai/alignment-engine/internal/store"
	"github.com/groundcrew-ai/alignment-engine/pkg/logger"
)

// ChannelHandler serves per-channel document and audit reads.
type ChannelHandler struct {
	docs   *store.DocumentStore
	audit  *store.AuditLog
	logger *logger.Logger
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(docs *store.DocumentStore, audit *store.AuditLog, log *logger.Logger) *ChannelHandler {
	return &ChannelHandler{
		docs:   docs,
		audit:  audit,
		logger: log,
	}
}

// GetDocument handles GET /api/v1/channels/{id}/document
func (h *ChannelHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	if err := middleware.ValidateChannelID(channelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.docs.Current(r.Context(), channelID)
	if errors.Is(err, store.ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "channel has no document")
		return
	}
	if err != nil {
		h.logger.Error("failed to read document", zap.String("channel_id", channelID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read document")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// GetChangelog handles GET /api/v1/channels/{id}/changelog
func (h *ChannelHandler) GetChangelog(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	if err := middleware.ValidateChannelID(channelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.docs.Current(r.Context(), channelID)
	if errors.Is(err, store.ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "channel has no document")
		return
	}
	if err != nil {
		h.logger.Error("failed to read document", zap.String("channel_id", channelID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read changelog")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id": channelID,
		"version":    doc.Version,
		"entries":    doc.Sections.DecisionLog,
	})
}

// QueryAudit handles GET /api/v1/channels/{id}/audit?since=&kind=
func (h *ChannelHandler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	if err := middleware.ValidateChannelID(channelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = parsed
	}

	kind := model.AuditKind(r.URL.Query().Get("kind"))

	records, err := h.audit.Query(r.Context(), channelID, since, kind)
	if err != nil {
		h.logger.Error("failed to query audit log", zap.String("channel_id", channelID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query audit log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id": channelID,
		"records":    records,
	})
}
