package server

import (
	"net/http"

	"github.com/hupe1980/vecsim"
)

// DefaultK is used when a search request omits k.
const DefaultK = 5

type searchRequest struct {
	Vector       []float32 `json:"vector"`
	Query        []float32 `json:"query"`
	K            *int      `json:"k"`
	WithMetadata bool      `json:"with_metadata"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}

	query := req.Vector
	if query == nil {
		query = req.Query
	}
	if query == nil {
		badRequest(w, "Missing required field: vector")
		return
	}

	k := DefaultK
	if req.K != nil {
		k = *req.K
	}

	results, err := s.db.Search(r.Context(), query, k, vecsim.WithMetadata(req.WithMetadata))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

type searchBatchRequest struct {
	Queries      [][]float32 `json:"queries"`
	K            *int        `json:"k"`
	WithMetadata bool        `json:"with_metadata"`
}

func (s *Server) handleSearchBatch(w http.ResponseWriter, r *http.Request) {
	var req searchBatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Queries == nil {
		badRequest(w, "Missing required field: queries")
		return
	}

	k := DefaultK
	if req.K != nil {
		k = *req.K
	}

	results, err := s.db.SearchBatch(r.Context(), req.Queries, k, vecsim.WithMetadata(req.WithMetadata))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}
