package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hupe1980/vecsim"
	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
)

type errorBody struct {
	Error               string   `json:"error"`
	Expected            int      `json:"expected,omitempty"`
	Received            *int     `json:"received,omitempty"`
	AvailableMetrics    []string `json:"available_metrics,omitempty"`
	AvailableAlgorithms []string `json:"available_algorithms,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v. Unknown fields are accepted.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid JSON body: %v", err)})
		return false
	}
	return true
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// statusOf maps an engine error to an HTTP status.
func statusOf(err error) int {
	var dm *vecsim.ErrDimensionMismatch
	var ic *vecsim.ErrInvalidConfiguration
	switch {
	case errors.As(err, &dm), errors.As(err, &ic),
		errors.Is(err, vecsim.ErrInvalidK),
		errors.Is(err, vecsim.ErrEmptyKey),
		errors.Is(err, vecsim.ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, vecsim.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vecsim.ErrCapacityExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, vecsim.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}

	var dm *vecsim.ErrDimensionMismatch
	if errors.As(err, &dm) {
		body.Error = "Dimension mismatch"
		body.Expected = dm.Expected
		body.Received = &dm.Actual
	}

	var ic *vecsim.ErrInvalidConfiguration
	if errors.As(err, &ic) {
		switch ic.Field {
		case "metric":
			body.AvailableMetrics = distance.AvailableMetrics()
		case "algorithm":
			body.AvailableAlgorithms = index.AvailableAlgorithms()
		}
	}

	if errors.Is(err, vecsim.ErrNotFound) {
		body.Error = "Vector not found"
	}

	writeJSON(w, statusOf(err), body)
}

type vectorJSON struct {
	Key      string    `json:"key"`
	Vector   []float32 `json:"vector"`
	Metadata string    `json:"metadata,omitempty"`
}

func toVectorJSON(rec vecsim.Record) vectorJSON {
	return vectorJSON{Key: rec.Key, Vector: rec.Vector, Metadata: rec.Metadata}
}
