package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/metergate/metergate/internal/metering"
)

// metersHandler groups meter CRUD handlers. Each validates the inbound
// payload, relays the operation upstream and wraps the decoded result.
type metersHandler struct {
	upstream Caller
}

func newMetersHandler(c Caller) *metersHandler {
	return &metersHandler{upstream: c}
}

// CreateMeter handles POST /meters.
func (h *metersHandler) CreateMeter(w http.ResponseWriter, r *http.Request) {
	var meter metering.Meter
	if err := readJSON(r, &meter); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if err := meter.Validate(); err != nil {
		writeRelayError(w, err)
		return
	}

	_, body, err := h.upstream.Call(r.Context(), http.MethodPost, "/meters", meter, nil)
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataEnvelope{Data: body})
}

// GetMeter handles GET /meters/{meterID}.
func (h *metersHandler) GetMeter(w http.ResponseWriter, r *http.Request) {
	meterID := chi.URLParam(r, "meterID")

	_, body, err := h.upstream.Call(r.Context(), http.MethodGet, "/meters/"+meterID, nil, nil)
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope{Data: body})
}

// ListMeters handles GET /meters.
func (h *metersHandler) ListMeters(w http.ResponseWriter, r *http.Request) {
	_, body, err := h.upstream.Call(r.Context(), http.MethodGet, "/meters", nil, nil)
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope{Data: body})
}

// UpdateMeter handles PUT /meters/{meterID}. The meter ID from the path fills
// in the payload's id when the caller leaves it out; the upstream update
// endpoint takes the ID in the body, not the path.
func (h *metersHandler) UpdateMeter(w http.ResponseWriter, r *http.Request) {
	meterID := chi.URLParam(r, "meterID")

	var meter metering.Meter
	if err := readJSON(r, &meter); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if err := meter.Validate(); err != nil {
		writeRelayError(w, err)
		return
	}
	if meter.ID == "" {
		meter.ID = meterID
	}

	_, body, err := h.upstream.Call(r.Context(), http.MethodPut, "/meters", meter, nil)
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope{Data: body})
}

// DeleteMeter handles DELETE /meters/{meterID}.
func (h *metersHandler) DeleteMeter(w http.ResponseWriter, r *http.Request) {
	meterID := chi.URLParam(r, "meterID")

	_, body, err := h.upstream.Call(r.Context(), http.MethodDelete, "/meters/"+meterID, nil, nil)
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope{Data: body})
}
