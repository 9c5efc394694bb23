package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"rentdesk/internal/authz"
	"rentdesk/internal/model"
	"rentdesk/internal/session"
	"rentdesk/internal/store"
)

// SubscriptionsHandler handles /api/subscriptions: webhook registrations
// scoped to the caller. Subscriptions only ever see events for the
// caller's own resources.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request, pr session.Principal) {
	if !pr.Role().Can(authz.CapSubscribe) {
		rejectDecision(w, r, authz.ReasonNoCap)
		return
	}
	switch r.Method {
	case http.MethodGet:
		subs, err := s.Store.ListSubscriptions(r.Context(), pr.Subject)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": subs, "count": len(subs)})
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if msg := validateSubscription(req); msg != "" {
			writeProblem(w, http.StatusBadRequest, "Validation failed", msg, r.URL.Path)
			return
		}
		sub := model.Subscription{
			ID:      uuid.NewString(),
			OwnerID: pr.Subject,
			URL:     req.URL,
			Events:  req.Events,
			Secret:  req.Secret,
		}
		ctx, cancel := s.writeCtx(r)
		defer cancel()
		saved, err := s.Store.CreateSubscription(ctx, sub)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		saved.Secret = ""
		writeJSON(w, http.StatusCreated, saved)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /api/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request, pr session.Principal) {
	id := strings.TrimPrefix(r.URL.Path, "/api/subscriptions/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := s.writeCtx(r)
	defer cancel()
	if err := s.Store.DeleteSubscription(ctx, pr.Subject, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
			return
		}
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func validateSubscription(req model.SubscriptionRequest) string {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "a valid http(s) url is required"
	}
	if len(req.Events) == 0 {
		return "at least one event type is required"
	}
	return ""
}
