package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hupe1980/vecsim"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": ServiceName,
		"version": Version,
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	st := s.db.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"dimensions":   st.Dimension,
		"vector_count": st.VectorCount,
		"algorithm":    st.Algorithm.String(),
		"metric":       st.Metric.String(),
		"simd_enabled": st.SIMDEnabled,
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	st := s.db.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"vector_count":   st.VectorCount,
		"dimensions":     st.Dimension,
		"algorithm":      st.Algorithm.String(),
		"parameters":     st.Params.Map(st.Algorithm),
		"metric":         st.Metric.String(),
		"simd_enabled":   st.SIMDEnabled,
		"simd_isa":       st.SIMDISA,
		"index_rebuilds": st.IndexRebuilds,
		"tombstones":     st.Tombstones,
		"memory_used":    st.MemoryUsed,
		"cache_stats":    st.Cache,
	})
}

type insertRequest struct {
	Key      *string   `json:"key"`
	Vector   []float32 `json:"vector"`
	Metadata string    `json:"metadata"`
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Key == nil || req.Vector == nil {
		badRequest(w, "Missing required fields: key and vector")
		return
	}
	s.insert(w, r, *req.Key, req.Vector, req.Metadata)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Vector == nil {
		badRequest(w, "Missing required field: vector")
		return
	}
	s.insert(w, r, r.PathValue("key"), req.Vector, req.Metadata)
}

func (s *Server) insert(w http.ResponseWriter, r *http.Request, key string, vector []float32, metadata string) {
	if err := s.db.Insert(r.Context(), key, vector, metadata); err != nil {
		writeError(w, err)
		return
	}
	s.autosave(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"key":        key,
		"dimensions": len(vector),
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.db.Get(r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVectorJSON(rec))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.db.Delete(r.Context(), key); err != nil {
		writeError(w, err)
		return
	}
	s.autosave(r.Context())

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"key":    key,
	})
}

func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(r, "page", 1)
	if !ok {
		badRequest(w, "page must be an integer")
		return
	}
	perPage, ok := queryInt(r, "per_page", 100)
	if !ok {
		badRequest(w, "per_page must be an integer")
		return
	}

	p, err := s.db.List(page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	vectors := make([]vectorJSON, len(p.Records))
	for i, rec := range p.Records {
		vectors[i] = toVectorJSON(rec)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vectors":     vectors,
		"page":        p.Page,
		"per_page":    p.PerPage,
		"total":       p.Total,
		"total_pages": p.TotalPages,
	})
}

type batchItem struct {
	Key      string    `json:"key"`
	Vector   []float32 `json:"vector"`
	Metadata string    `json:"metadata"`
}

// batchRequest accepts both the wrapped form {"vectors": [...]} and the
// columnar form {"keys": [...], "vectors": [[...]], "metadata": [...]}.
// The vectors field is decoded lazily since its shape depends on the form.
type batchRequest struct {
	Keys     []string        `json:"keys"`
	Vectors  json.RawMessage `json:"vectors"`
	Metadata []string        `json:"metadata"`
}

// parseBatch returns the items of a batch payload or a message describing
// why the payload is malformed.
func parseBatch(body []byte) ([]vecsim.Record, string) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, "empty request body"
	}

	var items []batchItem
	if body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, "invalid JSON body: " + err.Error()
		}
		return toRecords(items), ""
	}

	var req batchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, "invalid JSON body: " + err.Error()
	}
	if req.Vectors == nil {
		return nil, "Request body must contain a 'vectors' array"
	}

	if req.Keys == nil {
		if err := json.Unmarshal(req.Vectors, &items); err != nil {
			return nil, "'vectors' must be an array of {key, vector, metadata} objects"
		}
		return toRecords(items), ""
	}

	var vectors [][]float32
	if err := json.Unmarshal(req.Vectors, &vectors); err != nil {
		return nil, "'vectors' must be an array of arrays when 'keys' is given"
	}
	if len(vectors) != len(req.Keys) {
		return nil, "'keys' and 'vectors' must have the same length"
	}
	if req.Metadata != nil && len(req.Metadata) != len(req.Keys) {
		return nil, "'metadata' must have the same length as 'keys'"
	}

	recs := make([]vecsim.Record, len(req.Keys))
	for i, key := range req.Keys {
		recs[i] = vecsim.Record{Key: key, Vector: vectors[i]}
		if req.Metadata != nil {
			recs[i].Metadata = req.Metadata[i]
		}
	}
	return recs, ""
}

func toRecords(items []batchItem) []vecsim.Record {
	recs := make([]vecsim.Record, len(items))
	for i, it := range items {
		recs[i] = vecsim.Record{Key: it.Key, Vector: it.Vector, Metadata: it.Metadata}
	}
	return recs
}

type batchResult struct {
	Key    string `json:"key"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleBatchInsert(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !s.decode(w, r, &raw) {
		return
	}
	recs, msg := parseBatch(raw)
	if msg != "" {
		badRequest(w, msg)
		return
	}

	results, err := s.db.BatchInsert(r.Context(), recs)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]batchResult, len(results))
	failed := 0
	for i, res := range results {
		out[i] = batchResult{Key: res.Key, Status: "success"}
		if res.Err != nil {
			failed++
			out[i].Status = "error"
			out[i].Error = res.Err.Error()
		}
	}
	if failed < len(results) {
		s.autosave(r.Context())
	}

	status := "success"
	if failed > 0 {
		status = "partial"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"inserted": len(results) - failed,
		"failed":   failed,
		"count":    len(results),
		"results":  out,
	})
}
