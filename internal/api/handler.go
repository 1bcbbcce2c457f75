package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/radiowatch/radiowatch/internal/domain"
	"github.com/radiowatch/radiowatch/internal/linear"
	"github.com/radiowatch/radiowatch/internal/scoring"
	"github.com/radiowatch/radiowatch/internal/validation"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 8 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	scoring *scoring.Service
	version string
	now     func() time.Time
}

// NewHandler creates a new API handler. Cache and bus may be nil.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, svc *scoring.Service, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		scoring: svc,
		version: version,
		now:     time.Now,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	components := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			status = "degraded"
			components[name] = err.Error()
			return
		}
		components[name] = "ok"
	}

	if h.repo != nil {
		check("database", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("bus", func() error { return h.bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

// Ready reports whether the store is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// HomeRequest is the request body for PUT /home.
type HomeRequest struct {
	Lat     *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon     *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	RadiusM float64  `json:"radiusM" validate:"gte=0,lte=100000"`
}

// GetHome returns the configured home location.
func (h *Handler) GetHome(w http.ResponseWriter, r *http.Request) {
	home, err := h.repo.GetHomeLocation(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "home location not set",
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, home)
}

// SetHome replaces the home location and queues a full recompute when a
// bus is configured. Until it lands, distance filters over scores measured
// from the old home are reported as ignored.
func (h *Handler) SetHome(w http.ResponseWriter, r *http.Request) {
	var req HomeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	home := &domain.HomeLocation{
		Lat:       *req.Lat,
		Lon:       *req.Lon,
		RadiusM:   req.RadiusM,
		UpdatedAt: h.now().UTC(),
	}
	if err := h.repo.SetHomeLocation(r.Context(), home); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("home location updated", "lat", home.Lat, "lon", home.Lon, "radius_m", home.RadiusM)
	if h.bus != nil {
		if _, err := h.queueRecompute(r.Context(), nil); err != nil {
			slog.Warn("recompute after home change not queued", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, home)
}

// ClearHome removes the home location.
func (h *Handler) ClearHome(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.ClearHomeLocation(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("home location cleared")
	w.WriteHeader(http.StatusNoContent)
}

// ModelRequest is the request body for PUT /models/{type}.
type ModelRequest struct {
	Coefficients []float64 `json:"coefficients" validate:"required,min=1"`
	Intercept    float64   `json:"intercept"`
	FeatureNames []string  `json:"featureNames" validate:"required,min=1,dive,required"`
	Version      string    `json:"version" validate:"required,max=128"`
	TrainedAt    time.Time `json:"trainedAt"`
}

// GetModel returns the stored model config for a model type.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.repo.GetModelConfig(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// SaveModel stores trained coefficients. Feature names the extractor does
// not produce are accepted and reported as warnings.
func (h *Handler) SaveModel(w http.ResponseWriter, r *http.Request) {
	var req ModelRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	cfg := &domain.ModelConfig{
		ModelType:    chi.URLParam(r, "type"),
		Coefficients: req.Coefficients,
		Intercept:    req.Intercept,
		FeatureNames: req.FeatureNames,
		Version:      req.Version,
		TrainedAt:    req.TrainedAt,
	}
	if err := linear.Validate(cfg); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.SaveModelConfig(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}

	unknown := linear.UnknownFeatures(cfg)
	slog.Info("model config saved",
		"model_type", cfg.ModelType,
		"version", cfg.Version,
		"unknown_features", len(unknown),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"model":           cfg,
		"unknownFeatures": unknown,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  err.Error(),
			"fields": verr.Fields,
		})
	case errors.Is(err, domain.ErrHomeLocationRequired):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// decodeAndValidate reads a JSON body into v and validates it. It writes
// the error response and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if !decodeBody(w, r, v) {
		return false
	}
	if err := validation.Struct(v); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

// decodeBody reads a JSON body into v. An empty body leaves v unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	return true
}
