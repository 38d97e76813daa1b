package api

import (
	"net/http"
	"time"

	"github.com/metergate/metergate/internal/metering"
)

// ingestHandler exposes event ingestion on the synchronous route. It wraps the
// same logic the asynchronous event entry uses.
type ingestHandler struct {
	upstream Caller
}

func newIngestHandler(c Caller) *ingestHandler {
	return &ingestHandler{upstream: c}
}

// IngestUsage handles POST /ingest.
func (h *ingestHandler) IngestUsage(w http.ResponseWriter, r *http.Request) {
	var detail map[string]interface{}
	if err := readJSON(r, &detail); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	body, err := metering.Ingest(r.Context(), h.upstream, detail, time.Now())
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope{Data: body})
}
