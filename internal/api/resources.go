package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentdesk/internal/authz"
	"rentdesk/internal/metrics"
	"rentdesk/internal/model"
	"rentdesk/internal/session"
	"rentdesk/internal/store"
)

// resourceKind binds one stored resource type to its validation and
// document construction. The handlers below are shared across kinds.
type resourceKind struct {
	rtype string
	event string // event name prefix, e.g. "property"
	// build validates the creation body and returns the stored document.
	build func(id, owner, now string, body []byte) (json.RawMessage, string, error)
	// apply validates an update body against the existing document and
	// returns the replacement. Identity fields never come from the body.
	apply func(rec store.Record, now string, body []byte) (json.RawMessage, string, error)
}

var propertyKind = resourceKind{
	rtype: model.TypeProperty,
	event: "property",
	build: func(id, owner, now string, body []byte) (json.RawMessage, string, error) {
		var in model.PropertyInput
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, "", err
		}
		if msg := validateProperty(in); msg != "" {
			return nil, msg, nil
		}
		if in.Status == "" {
			in.Status = "active"
		}
		if in.Images == nil {
			in.Images = []string{}
		}
		doc, err := json.Marshal(model.Property{
			ID: id, OwnerID: owner, Title: strings.TrimSpace(in.Title),
			Description: in.Description, Address: in.Address, Price: in.Price,
			PropertyType: in.PropertyType, Status: in.Status, Images: in.Images,
			CreatedAt: now, UpdatedAt: now, CreatedBy: owner,
		})
		return doc, "", err
	},
	apply: func(rec store.Record, now string, body []byte) (json.RawMessage, string, error) {
		var cur model.Property
		if err := json.Unmarshal(rec.Doc, &cur); err != nil {
			return nil, "", err
		}
		var in model.PropertyInput
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, "", err
		}
		if msg := validateProperty(in); msg != "" {
			return nil, msg, nil
		}
		cur.Title = strings.TrimSpace(in.Title)
		cur.Description = in.Description
		cur.Address = in.Address
		cur.Price = in.Price
		if in.PropertyType != "" {
			cur.PropertyType = in.PropertyType
		}
		if in.Status != "" {
			cur.Status = in.Status
		}
		if in.Images != nil {
			cur.Images = in.Images
		}
		cur.UpdatedAt = now
		doc, err := json.Marshal(cur)
		return doc, "", err
	},
}

var financeKind = resourceKind{
	rtype: model.TypeFinance,
	event: "finance",
	build: func(id, owner, now string, body []byte) (json.RawMessage, string, error) {
		var in model.FinanceInput
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, "", err
		}
		if msg := validateFinance(in); msg != "" {
			return nil, msg, nil
		}
		if in.Currency == "" {
			in.Currency = "USD"
		}
		doc, err := json.Marshal(model.FinanceRecord{
			ID: id, OwnerID: owner, PropertyID: in.PropertyID, Kind: in.Kind,
			Amount: in.Amount, Currency: in.Currency, Note: in.Note,
			OccurredAt: in.OccurredAt, CreatedAt: now, UpdatedAt: now,
		})
		return doc, "", err
	},
	apply: func(rec store.Record, now string, body []byte) (json.RawMessage, string, error) {
		var cur model.FinanceRecord
		if err := json.Unmarshal(rec.Doc, &cur); err != nil {
			return nil, "", err
		}
		var in model.FinanceInput
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, "", err
		}
		if msg := validateFinance(in); msg != "" {
			return nil, msg, nil
		}
		cur.PropertyID = in.PropertyID
		cur.Kind = in.Kind
		cur.Amount = in.Amount
		if in.Currency != "" {
			cur.Currency = in.Currency
		}
		cur.Note = in.Note
		cur.OccurredAt = in.OccurredAt
		cur.UpdatedAt = now
		doc, err := json.Marshal(cur)
		return doc, "", err
	},
}

var loanKind = resourceKind{
	rtype: model.TypeLoan,
	event: "loan",
	build: func(id, owner, now string, body []byte) (json.RawMessage, string, error) {
		var in model.LoanInput
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, "", err
		}
		if msg := validateLoan(in); msg != "" {
			return nil, msg, nil
		}
		doc, err := json.Marshal(model.Loan{
			ID: id, OwnerID: owner, PropertyID: in.PropertyID, Lender: in.Lender,
			Principal: in.Principal, RatePct: in.RatePct, TermMonths: in.TermMonths,
			StartDate: in.StartDate, CreatedAt: now, UpdatedAt: now,
		})
		return doc, "", err
	},
	apply: func(rec store.Record, now string, body []byte) (json.RawMessage, string, error) {
		var cur model.Loan
		if err := json.Unmarshal(rec.Doc, &cur); err != nil {
			return nil, "", err
		}
		var in model.LoanInput
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, "", err
		}
		if msg := validateLoan(in); msg != "" {
			return nil, msg, nil
		}
		cur.PropertyID = in.PropertyID
		cur.Lender = in.Lender
		cur.Principal = in.Principal
		cur.RatePct = in.RatePct
		cur.TermMonths = in.TermMonths
		cur.StartDate = in.StartDate
		cur.UpdatedAt = now
		doc, err := json.Marshal(cur)
		return doc, "", err
	},
}

// rejectDecision writes the response for a denied guard decision.
// NotOwner and NotFound share one body so responses cannot reveal
// whether a foreign resource exists.
func rejectDecision(w http.ResponseWriter, r *http.Request, reason authz.Reason) {
	metrics.AuthzDecisions.WithLabelValues(string(reason)).Inc()
	switch reason {
	case authz.ReasonNoCap:
		writeProblem(w, http.StatusForbidden, "Forbidden", "role does not permit this operation", r.URL.Path)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrConflict) {
		writeProblem(w, http.StatusConflict, "Conflict", "resource changed concurrently", r.URL.Path)
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	writeProblem(w, http.StatusServiceUnavailable, "Service Unavailable", "try again shortly", r.URL.Path)
}

// collectionHandler serves GET (owner-scoped list) and POST (create) on
// a resource collection.
func (s *Server) collectionHandler(kind resourceKind) protectedFunc {
	return func(w http.ResponseWriter, r *http.Request, pr session.Principal) {
		switch r.Method {
		case http.MethodGet:
			if !pr.Role().Can(authz.CapResourceRead) {
				rejectDecision(w, r, authz.ReasonNoCap)
				return
			}
			recs, err := s.Guard.Query(r.Context(), pr.Subject, pr.Role(), kind.rtype)
			if err != nil {
				writeStoreError(w, r, err)
				return
			}
			items := make([]json.RawMessage, 0, len(recs))
			for _, rec := range recs {
				items = append(items, rec.Doc)
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
		case http.MethodPost:
			if !pr.Role().Can(authz.CapResourceCreate) {
				rejectDecision(w, r, authz.ReasonNoCap)
				return
			}
			body, err := readBody(w, r)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			id := uuid.NewString()
			now := model.Timestamp(time.Now())
			doc, msg, err := kind.build(id, pr.Subject, now, body)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			if msg != "" {
				writeProblem(w, http.StatusBadRequest, "Validation failed", msg, r.URL.Path)
				return
			}
			rec := store.Record{Type: kind.rtype, ID: id, OwnerID: pr.Subject, Doc: doc}
			ctx, cancel := s.writeCtx(r)
			defer cancel()
			if err := s.Store.Create(ctx, rec); err != nil {
				writeStoreError(w, r, err)
				return
			}
			s.emit(r, pr.Subject, kind, id, "created", doc)
			writeJSON(w, http.StatusCreated, json.RawMessage(doc))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

// itemHandler serves GET, PUT, and DELETE on one resource. Every method
// runs the ownership guard; updates and deletes additionally carry the
// owner precondition into the store so a concurrent change surfaces as
// a conflict instead of silently winning.
func (s *Server) itemHandler(kind resourceKind, id string) protectedFunc {
	return func(w http.ResponseWriter, r *http.Request, pr session.Principal) {
		action := authz.ActionRead
		switch r.Method {
		case http.MethodPut:
			action = authz.ActionUpdate
		case http.MethodDelete:
			action = authz.ActionDelete
		case http.MethodGet:
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		dec, err := s.Guard.Authorize(r.Context(), pr.Subject, pr.Role(), kind.rtype, id, action)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if !dec.Allow {
			rejectDecision(w, r, dec.Reason)
			return
		}
		metrics.AuthzDecisions.WithLabelValues(string(authz.ReasonOK)).Inc()

		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, json.RawMessage(dec.Record.Doc))
		case http.MethodPut:
			body, err := readBody(w, r)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			now := model.Timestamp(time.Now())
			doc, msg, err := kind.apply(dec.Record, now, body)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			if msg != "" {
				writeProblem(w, http.StatusBadRequest, "Validation failed", msg, r.URL.Path)
				return
			}
			ctx, cancel := s.writeCtx(r)
			defer cancel()
			saved, err := s.Store.PutIfOwnerUnchanged(ctx, kind.rtype, id, dec.Record.OwnerID, doc)
			if err != nil {
				writeStoreError(w, r, err)
				return
			}
			s.emit(r, dec.Record.OwnerID, kind, id, "updated", saved.Doc)
			writeJSON(w, http.StatusOK, json.RawMessage(saved.Doc))
		case http.MethodDelete:
			ctx, cancel := s.writeCtx(r)
			defer cancel()
			if err := s.Store.Delete(ctx, kind.rtype, id, dec.Record.OwnerID); err != nil {
				writeStoreError(w, r, err)
				return
			}
			s.emit(r, dec.Record.OwnerID, kind, id, "deleted", nil)
			writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
		}
	}
}

func (s *Server) emit(r *http.Request, ownerID string, kind resourceKind, id, verb string, doc json.RawMessage) {
	eventType := fmt.Sprintf("%s.%s", kind.event, verb)
	data := map[string]any{"id": id, "ts": model.Timestamp(time.Now())}
	if doc != nil {
		data["resource"] = doc
	}
	s.Pub.Emit(r.Context(), ownerID, eventType, data)
	if kind.rtype == model.TypeProperty {
		s.Broker.Publish(id, SSEEvent{Type: eventType, Data: data})
	}
}

// maxBodyBytes caps request bodies before any decoding happens.
const maxBodyBytes = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// PropertiesHandler routes /api/properties.
func (s *Server) PropertiesHandler(w http.ResponseWriter, r *http.Request) {
	s.protected(s.collectionHandler(propertyKind))(w, r)
}

// PropertyByIDHandler routes /api/properties/{id} and the SSE stream at
// /api/properties/{id}/events/stream.
func (s *Server) PropertyByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/properties/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) == 3 && parts[1] == "events" && parts[2] == "stream" {
		s.protected(s.propertyStreamHandler(id))(w, r)
		return
	}
	if len(parts) != 1 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	s.protected(s.itemHandler(propertyKind, id))(w, r)
}

// FinancesHandler routes /api/finances.
func (s *Server) FinancesHandler(w http.ResponseWriter, r *http.Request) {
	s.protected(s.collectionHandler(financeKind))(w, r)
}

// FinanceByIDHandler routes /api/finances/{id}.
func (s *Server) FinanceByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/finances/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	s.protected(s.itemHandler(financeKind, id))(w, r)
}

// LoansHandler routes /api/loans.
func (s *Server) LoansHandler(w http.ResponseWriter, r *http.Request) {
	s.protected(s.collectionHandler(loanKind))(w, r)
}

// LoanByIDHandler routes /api/loans/{id}.
func (s *Server) LoanByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/loans/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	s.protected(s.itemHandler(loanKind, id))(w, r)
}
