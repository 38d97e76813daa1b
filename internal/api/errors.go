package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/metergate/metergate/internal/metering"
	"github.com/metergate/metergate/internal/upstream"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// dataEnvelope wraps successful responses.
type dataEnvelope struct {
	Data interface{} `json:"data"`
}

// errorEnvelope is the standard error response shape. Detail carries the
// upstream's decoded body when the failure originated there.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeErrorDetail(w, statusCode, code, message, nil)
}

func writeErrorDetail(w http.ResponseWriter, statusCode int, code, message string, detail interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
			Detail:  detail,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// writeRelayError maps a relay failure onto the caller-visible response:
// validation failures are 400s naming the missing fields, upstream 4xx
// responses pass their status and decoded body through, and upstream 5xx
// responses (already retried) surface as 502 with the last body as detail.
func writeRelayError(w http.ResponseWriter, err error) {
	var ve *metering.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "validation_error", ve.Error())
		return
	}

	var ce *upstream.ClientError
	if errors.As(err, &ce) {
		writeErrorDetail(w, ce.Status, "upstream_rejected", "upstream rejected the request", ce.Body)
		return
	}

	var se *upstream.ServerError
	if errors.As(err, &se) {
		writeErrorDetail(w, http.StatusBadGateway, "upstream_error", "upstream server error", se.Body)
		return
	}

	writeError(w, http.StatusBadGateway, "upstream_unreachable", "upstream request failed")
}
