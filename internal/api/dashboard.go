package api

import (
	"encoding/json"
	"net/http"

	"rentdesk/internal/authz"
	"rentdesk/internal/model"
	"rentdesk/internal/session"
)

// DashboardHandler handles GET /api/dashboard: an owner-scoped summary
// built from the caller's own records only.
func (s *Server) DashboardHandler(w http.ResponseWriter, r *http.Request, pr session.Principal) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !pr.Role().Can(authz.CapDashboardView) {
		rejectDecision(w, r, authz.ReasonNoCap)
		return
	}
	props, err := s.Guard.Query(r.Context(), pr.Subject, pr.Role(), model.TypeProperty)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	fins, err := s.Guard.Query(r.Context(), pr.Subject, pr.Role(), model.TypeFinance)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	loans, err := s.Guard.Query(r.Context(), pr.Subject, pr.Role(), model.TypeLoan)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	stats := model.DashboardStats{
		TotalProperties: len(props),
		TotalLoans:      len(loans),
		UserRole:        string(pr.Role()),
	}
	for _, rec := range props {
		var p model.Property
		if json.Unmarshal(rec.Doc, &p) != nil {
			continue
		}
		switch p.Status {
		case "active":
			stats.ActiveProperties++
		case "vacant":
			stats.VacantProperties++
		}
	}
	for _, rec := range fins {
		var f model.FinanceRecord
		if json.Unmarshal(rec.Doc, &f) != nil {
			continue
		}
		stats.TotalFinance += f.Amount
	}
	writeJSON(w, http.StatusOK, stats)
}
