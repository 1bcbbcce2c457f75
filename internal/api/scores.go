package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/radiowatch/radiowatch/internal/bus"
	"github.com/radiowatch/radiowatch/internal/domain"
	"github.com/radiowatch/radiowatch/internal/scoring"
)

// TagRequest is the request body for PUT /networks/{id}/tag.
type TagRequest struct {
	TagType domain.TagType `json:"tagType" validate:"required"`
	// Confidence defaults to 1 when omitted.
	Confidence *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	Notes      string   `json:"notes" validate:"max=4096"`
}

// RecomputeRequest is the request body for POST /scores/recompute.
type RecomputeRequest struct {
	NetworkIDs []string `json:"networkIds" validate:"max=10000,dive,required"`
	Async      bool     `json:"async"`
}

// RecomputeResponse reports a synchronous recompute.
type RecomputeResponse struct {
	*scoring.RunResult
	Error string `json:"error,omitempty"`
}

// GetScore returns the stored score record of a network.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	rec, err := h.scoring.Score(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RecomputeScore rescores one network now and returns the new record.
func (h *Handler) RecomputeScore(w http.ResponseWriter, r *http.Request) {
	rec, err := h.scoring.RecomputeOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetTag returns the active tag of a network.
func (h *Handler) GetTag(w http.ResponseWriter, r *http.Request) {
	tag, err := h.repo.GetTag(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// SetTag replaces the tag of a network. The stored score is refreshed
// asynchronously through the tag.changed event.
func (h *Handler) SetTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	confidence := 1.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	tag := &domain.UserTag{
		NetworkID:  domain.NormalizeNetworkID(chi.URLParam(r, "id")),
		TagType:    req.TagType,
		Confidence: confidence,
		Notes:      req.Notes,
		TaggedAt:   h.now().UTC(),
	}
	if err := h.repo.SaveTag(r.Context(), tag); err != nil {
		writeError(w, err)
		return
	}

	h.tagChanged(r, domain.TagChangedEvent{NetworkID: tag.NetworkID, TagType: tag.TagType})
	writeJSON(w, http.StatusOK, tag)
}

// DeleteTag removes the tag of a network.
func (h *Handler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	id := domain.NormalizeNetworkID(chi.URLParam(r, "id"))
	if err := h.repo.DeleteTag(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	h.tagChanged(r, domain.TagChangedEvent{NetworkID: id, Deleted: true})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) tagChanged(r *http.Request, ev domain.TagChangedEvent) {
	ctx := r.Context()
	h.scoring.Invalidate(ctx, ev.NetworkID)

	slog.Info("tag changed",
		"network_id", ev.NetworkID,
		"tag_type", ev.TagType,
		"deleted", ev.Deleted,
		"request_id", GetRequestID(ctx),
	)

	if h.bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, h.bus, domain.TopicTagChanged, ev); err != nil {
		slog.Warn("tag change publish failed", "network_id", ev.NetworkID, "error", err)
	}
}

// Recompute rescores networks. With async set the request is queued on
// the bus and a run id is returned immediately.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	if req.Async {
		if h.bus == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "event bus unavailable",
			})
			return
		}
		runID, err := h.queueRecompute(ctx, req.NetworkIDs)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"runId":  runID,
			"status": "queued",
		})
		return
	}

	res, err := h.scoring.Recompute(ctx, "", req.NetworkIDs)
	if res == nil {
		writeError(w, err)
		return
	}
	resp := RecomputeResponse{RunResult: res}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// queueRecompute publishes a recompute request and returns its run id.
func (h *Handler) queueRecompute(ctx context.Context, networkIDs []string) (string, error) {
	runID := uuid.NewString()
	msg := domain.RecomputeRequest{RunID: runID, NetworkIDs: networkIDs}
	if err := bus.PublishJSON(ctx, h.bus, domain.TopicScoreRecompute, msg); err != nil {
		return "", fmt.Errorf("queue recompute: %w", err)
	}
	slog.Info("recompute queued", "run_id", runID, "networks", len(networkIDs))
	return runID, nil
}

// Severity returns threat counts by level.
func (h *Handler) Severity(w http.ResponseWriter, r *http.Request) {
	counts, err := h.scoring.Severity(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
