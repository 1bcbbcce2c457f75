package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/radiowatch/radiowatch/internal/domain"
	"github.com/radiowatch/radiowatch/internal/filter"
	"github.com/radiowatch/radiowatch/internal/metrics"
)

// QueryRequest is the request body for POST /networks/query.
type QueryRequest struct {
	Filters    map[string]json.RawMessage `json:"filters"`
	Enabled    map[string]bool            `json:"enabled"`
	Pagination filter.Pagination          `json:"pagination"`
	Sort       filter.Sort                `json:"sort"`
}

// QueryResponse carries one page of networks and how the filters applied.
type QueryResponse struct {
	Networks     []domain.NetworkThreat `json:"networks"`
	Total        int64                  `json:"total"`
	Limit        int                    `json:"limit"`
	Offset       int                    `json:"offset"`
	Transparency filter.Transparency    `json:"transparency"`
}

// GeospatialRequest is the request body for POST /networks/geospatial.
type GeospatialRequest struct {
	Filters     map[string]json.RawMessage `json:"filters"`
	Enabled     map[string]bool            `json:"enabled"`
	Limit       int                        `json:"limit" validate:"gte=0"`
	SelectedIDs []string                   `json:"selectedIds" validate:"max=1000"`
}

// GeospatialResponse carries located observations of matching networks.
type GeospatialResponse struct {
	Points       []domain.GeoPoint   `json:"points"`
	Transparency filter.Transparency `json:"transparency"`
}

// ObservationsRequest is the request body for POST /observations.
type ObservationsRequest struct {
	Observations []ObservationInput `json:"observations" validate:"required,min=1,max=10000,dive"`
	// Rescore queues a recompute of the touched networks.
	Rescore bool `json:"rescore"`
}

// ObservationInput is one sighting in an ingest batch.
type ObservationInput struct {
	NetworkID   string   `json:"networkId" validate:"required,max=128"`
	Lat         float64  `json:"lat" validate:"gte=-90,lte=90"`
	Lon         float64  `json:"lon" validate:"gte=-180,lte=180"`
	TimestampMs int64    `json:"timestampMs" validate:"gte=0"`
	SignalDbm   *float64 `json:"signalDbm" validate:"omitempty,gte=-150,lte=0"`
	RadioType   string   `json:"radioType"`
	SSID        string   `json:"ssid" validate:"max=256"`
}

// QueryNetworks runs a filtered, paginated network listing.
func (h *Handler) QueryNetworks(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	b, err := h.filterBuilder(ctx, req.Filters, req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}

	listQ, err := b.ListQuery(req.Pagination, req.Sort)
	if err != nil {
		writeError(w, err)
		return
	}
	networks, err := h.repo.QueryNetworks(ctx, listQ)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := h.repo.CountNetworks(ctx, b.CountQuery())
	if err != nil {
		writeError(w, err)
		return
	}

	tr := b.Transparency()
	metrics.RecordFilterRequest(tr.ExplicitFiltersOnly, len(tr.IgnoredFilters))

	limit := req.Pagination.Limit
	switch {
	case limit <= 0:
		limit = filter.DefaultListLimit
	case limit > filter.MaxListLimit:
		limit = filter.MaxListLimit
	}
	if networks == nil {
		networks = []domain.NetworkThreat{}
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		Networks:     networks,
		Total:        total,
		Limit:        limit,
		Offset:       req.Pagination.Offset,
		Transparency: tr,
	})
}

// QueryGeospatial returns map points for the filtered networks.
func (h *Handler) QueryGeospatial(w http.ResponseWriter, r *http.Request) {
	var req GeospatialRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	b, err := h.filterBuilder(ctx, req.Filters, req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}

	points, err := h.repo.QueryGeoPoints(ctx, b.GeospatialQuery(req.Limit, req.SelectedIDs))
	if err != nil {
		writeError(w, err)
		return
	}

	tr := b.Transparency()
	metrics.RecordFilterRequest(tr.ExplicitFiltersOnly, len(tr.IgnoredFilters))

	if points == nil {
		points = []domain.GeoPoint{}
	}
	writeJSON(w, http.StatusOK, GeospatialResponse{Points: points, Transparency: tr})
}

func (h *Handler) filterBuilder(ctx context.Context, raw map[string]json.RawMessage, enabled map[string]bool) (*filter.Builder, error) {
	home, err := h.repo.GetHomeLocation(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		home = nil
	case err != nil:
		return nil, err
	}

	opts := filter.Options{Home: home, Now: h.now()}
	if home != nil && (enabled[filter.KeyDistanceFromHomeMin] || enabled[filter.KeyDistanceFromHomeMax]) {
		stale, err := h.repo.CountStaleScores(ctx, home.Key())
		if err != nil {
			return nil, err
		}
		opts.StaleDistances = stale > 0
	}
	return filter.New(filter.ParsePayload(raw), enabled, opts)
}

// IngestObservations stores a batch of sightings.
func (h *Handler) IngestObservations(w http.ResponseWriter, r *http.Request) {
	var req ObservationsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	obs := make([]domain.Observation, len(req.Observations))
	seen := make(map[string]struct{})
	var ids []string
	for i, in := range req.Observations {
		id := domain.NormalizeNetworkID(in.NetworkID)
		obs[i] = domain.Observation{
			NetworkID:   id,
			Lat:         in.Lat,
			Lon:         in.Lon,
			TimestampMs: in.TimestampMs,
			SignalDbm:   in.SignalDbm,
			RadioType:   domain.ParseRadioType(in.RadioType),
			SSID:        in.SSID,
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	if err := h.repo.SaveObservations(ctx, obs); err != nil {
		writeError(w, err)
		return
	}
	metrics.ObservationsIngestedTotal.Add(float64(len(obs)))

	resp := map[string]any{
		"accepted": len(obs),
		"networks": len(ids),
	}
	if req.Rescore && h.bus != nil {
		runID, err := h.queueRecompute(ctx, ids)
		if err != nil {
			writeError(w, err)
			return
		}
		resp["runId"] = runID
	}
	writeJSON(w, http.StatusAccepted, resp)
}
