package server

import (
	"fmt"
	"net/http"

	"github.com/hupe1980/vecsim/distance"
	"github.com/hupe1980/vecsim/index"
)

func (s *Server) handleGetMetric(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"metric":            s.db.Metric().String(),
		"available_metrics": distance.AvailableMetrics(),
	})
}

func (s *Server) handleSetMetric(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Metric *string `json:"metric"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Metric == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:            "Missing required field: metric",
			AvailableMetrics: distance.AvailableMetrics(),
		})
		return
	}

	if err := s.db.SetMetric(r.Context(), *req.Metric); err != nil {
		writeError(w, err)
		return
	}

	m := s.db.Metric().String()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"metric":  m,
		"message": fmt.Sprintf("Distance metric set to %s", m),
	})
}

func (s *Server) handleGetAlgorithm(w http.ResponseWriter, _ *http.Request) {
	algo, params := s.db.Algorithm()
	writeJSON(w, http.StatusOK, map[string]any{
		"current_algorithm":    algo.String(),
		"parameters":           params.Map(algo),
		"available_algorithms": index.Catalog(),
	})
}

type algorithmRequest struct {
	Algorithm *string `json:"algorithm"`
	index.Overrides
}

func (s *Server) handleSetAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req algorithmRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Algorithm == nil || *req.Algorithm == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:               "Missing required field: algorithm",
			AvailableAlgorithms: index.AvailableAlgorithms(),
		})
		return
	}

	params, err := s.db.SetAlgorithm(r.Context(), *req.Algorithm, req.Overrides)
	if err != nil {
		writeError(w, err)
		return
	}

	algo, _ := s.db.Algorithm()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "success",
		"algorithm":            algo.String(),
		"parameters":           params.Map(algo),
		"expected_performance": index.ExpectedPerformance(algo, params),
	})
}

func (s *Server) simdState() map[string]any {
	return map[string]any{
		"simd_enabled": s.db.SIMDEnabled(),
		"isa":          s.db.SIMDISA(),
	}
}

func (s *Server) handleGetSIMD(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.simdState())
}

func (s *Server) handleSetSIMD(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		badRequest(w, "Missing required field: enabled")
		return
	}

	s.db.SetSIMD(*req.Enabled)
	resp := s.simdState()
	resp["status"] = "success"
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	info, err := s.db.Save(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"file":    info.Name,
		"records": info.Records,
		"bytes":   info.Bytes,
	})
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	res, err := s.db.Compact(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"records":    res.Records,
		"tombstones": res.Tombstones,
		"slots":      res.Slots,
		"rebuilt":    res.Rebuilt,
	})
}
