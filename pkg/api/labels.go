package api

import (
	"net/http"

	"bizdesk/pkg/apperr"
	"bizdesk/pkg/approval"
	"bizdesk/pkg/status"
)

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request, _ approval.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, status.All())
}

// handleLabelDomain returns one table, or a single label when ?code= is set.
// Unknown codes still resolve through the fallback label.
func (s *Server) handleLabelDomain(w http.ResponseWriter, r *http.Request, _ approval.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	domain := r.PathValue("domain")
	table, ok := status.Table(domain)
	if !ok {
		s.writeError(w, r, apperr.NotFound("label domain", domain))
		return
	}
	if code := r.URL.Query().Get("code"); code != "" {
		l, _ := status.Lookup(domain, code)
		writeJSON(w, http.StatusOK, l)
		return
	}
	writeJSON(w, http.StatusOK, table)
}
