package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/metergate/metergate/internal/metering"
)

// usageHandler groups usage query and cancellation handlers.
type usageHandler struct {
	upstream Caller
}

func newUsageHandler(c Caller) *usageHandler {
	return &usageHandler{upstream: c}
}

// parseEpochParam parses an optional epoch-seconds query param.
func parseEpochParam(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetUsage handles GET /usage/{meterID}. When the query does not name the
// meter's API name, it is resolved through the fetch-meter operation first.
func (h *usageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	meterID := chi.URLParam(r, "meterID")
	params := r.URL.Query()

	apiName := params.Get("meterApiName")
	if apiName == "" {
		resolved, err := h.resolveMeterAPIName(r, meterID)
		if err != nil {
			writeRelayError(w, err)
			return
		}
		apiName = resolved
	}

	start, err := parseEpochParam(params.Get("startTimeInSeconds"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "startTimeInSeconds must be an integer")
		return
	}
	end, err := parseEpochParam(params.Get("endTimeInSeconds"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "endTimeInSeconds must be an integer")
		return
	}

	query := metering.NewUsageQuery(apiName, start, end, params.Get("timeGroupingInterval"), time.Now())

	if mf := params.Get("minimizeFresh"); mf != "" {
		v, err := strconv.ParseBool(mf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_params", "minimizeFresh must be a boolean")
			return
		}
		query.MinimizeFresh = &v
	}

	_, body, err := h.upstream.Call(r.Context(), http.MethodPost, "/usage", query, nil)
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope{Data: body})
}

// resolveMeterAPIName fetches the meter by ID and extracts its API name.
func (h *usageHandler) resolveMeterAPIName(r *http.Request, meterID string) (string, error) {
	_, body, err := h.upstream.Call(r.Context(), http.MethodGet, "/meters/"+meterID, nil, nil)
	if err != nil {
		return "", err
	}

	meter, _ := body.(map[string]interface{})
	apiName, _ := meter["meterApiName"].(string)
	if apiName == "" {
		return "", &metering.ValidationError{Missing: []string{"meterApiName"}}
	}
	return apiName, nil
}

// CancelUsage handles DELETE /usage by creating an upstream filtering rule
// that excludes the matching ingested events.
func (h *usageHandler) CancelUsage(w http.ResponseWriter, r *http.Request) {
	var filter metering.CancelFilter
	if err := readJSON(r, &filter); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if err := filter.Validate(); err != nil {
		writeRelayError(w, err)
		return
	}

	_, body, err := h.upstream.Call(r.Context(), http.MethodPost, "/ingest-snapshot/custom-filtering-rules", filter, nil)
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope{Data: body})
}
