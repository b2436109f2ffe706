package handler

import (
	"net/http"

	"github.com/pkordes/busline/internal/domain"
)

// ApplyBulk handles POST /trips/bulk. Per-item failures are part of a 200
// response; only a rejected batch is an error response.
func (s *Server) ApplyBulk(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}
	var body domain.BulkRequest
	if !readBody(w, r, &body) {
		return
	}

	result, err := s.bulk.ApplyBulk(r.Context(), a, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
