package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"rentdesk/internal/auth"
	"rentdesk/internal/authz"
	"rentdesk/internal/model"
	"rentdesk/internal/session"
	"rentdesk/internal/store"
)

const (
	maxLoginFailures = 5
	lockoutWindow    = 15 * time.Minute
)

// RegisterHandler handles POST /api/auth/register.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if msg := validateRegistration(req); msg != "" {
		writeProblem(w, http.StatusBadRequest, "Validation failed", msg, r.URL.Path)
		return
	}
	if req.Role == "" {
		req.Role = string(authz.RoleOwner)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Registration failed", "", r.URL.Path)
		return
	}
	now := model.Timestamp(time.Now())
	prof := model.Profile{
		Subject:      uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         string(authz.ParseRole(req.Role)),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Company:      req.Company,
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ctx, cancel := s.writeCtx(r)
	defer cancel()
	if err := s.Store.CreateProfile(ctx, prof); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeProblem(w, http.StatusConflict, "Email already registered", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusServiceUnavailable, "Registration failed", "try again shortly", r.URL.Path)
		return
	}
	access, refresh, expiresAt, err := s.Auth.Issue(prof.Subject, prof.Email, prof.Role)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Registration failed", "", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"profile": prof,
		"tokens": model.TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    model.Timestamp(expiresAt),
		},
	})
}

// LoginHandler handles POST /api/auth/login. Failed attempts are counted
// per email; past the threshold the account locks for a window. The
// response never says whether the email or the password was wrong.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.loginLimit.Allow() {
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "login rate exceeded", r.URL.Path)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeProblem(w, http.StatusBadRequest, "Validation failed", "email and password are required", r.URL.Path)
		return
	}
	if s.KV.Locked(r.Context(), email) {
		writeProblem(w, http.StatusTooManyRequests, "Account temporarily locked", "too many failed attempts", r.URL.Path)
		return
	}
	prof, err := s.Store.GetProfileByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.noteLoginFailure(r, email)
			writeProblemCode(w, http.StatusUnauthorized, "invalid_credentials", "Unauthorized", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusServiceUnavailable, "Login failed", "try again shortly", r.URL.Path)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(prof.PasswordHash), []byte(req.Password)) != nil {
		s.noteLoginFailure(r, email)
		writeProblemCode(w, http.StatusUnauthorized, "invalid_credentials", "Unauthorized", "", r.URL.Path)
		return
	}
	if prof.Status == "disabled" {
		writeProblemCode(w, http.StatusUnauthorized, "invalid_credentials", "Unauthorized", "", r.URL.Path)
		return
	}
	s.KV.ClearFailures(r.Context(), email)
	access, refresh, expiresAt, err := s.Auth.Issue(prof.Subject, prof.Email, prof.Role)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Login failed", "", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile": prof,
		"tokens": model.TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    model.Timestamp(expiresAt),
		},
	})
}

func (s *Server) noteLoginFailure(r *http.Request, email string) {
	n, err := s.KV.RecordFailure(r.Context(), email, lockoutWindow)
	if err == nil && n >= maxLoginFailures {
		_ = s.KV.Lock(r.Context(), email, lockoutWindow)
	}
}

// RefreshHandler handles POST /api/auth/refresh. The refresh token goes
// through the same verifier and the subject must still resolve; a token
// for a deleted account cannot mint new credentials.
func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", "refreshToken is required", r.URL.Path)
		return
	}
	id, err := s.Auth.Verify(req.RefreshToken)
	if err != nil {
		s.rejectAuth(w, r, err)
		return
	}
	if id.TokenType != "refresh" {
		s.rejectAuth(w, r, auth.ErrMalformedToken)
		return
	}
	pr, err := s.Resolver.Resolve(r.Context(), id)
	if err != nil {
		s.rejectAuth(w, r, err)
		return
	}
	access, refresh, expiresAt, err := s.Auth.Issue(pr.Subject, pr.Email, pr.Profile.Role)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Refresh failed", "", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    model.Timestamp(expiresAt),
	})
}

// ProfileHandler handles GET and PUT /api/auth/profile for the caller's
// own record. Email, role, and password hash are not updatable here.
func (s *Server) ProfileHandler(w http.ResponseWriter, r *http.Request, pr session.Principal) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, pr.Profile)
	case http.MethodPut:
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var upd model.ProfileUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		prof := pr.Profile
		if upd.FirstName != "" {
			prof.FirstName = upd.FirstName
		}
		if upd.LastName != "" {
			prof.LastName = upd.LastName
		}
		if upd.Phone != "" {
			prof.Phone = upd.Phone
		}
		if upd.Company != "" {
			prof.Company = upd.Company
		}
		if upd.Address != nil {
			prof.Address = *upd.Address
		}
		prof.UpdatedAt = model.Timestamp(time.Now())
		ctx, cancel := s.writeCtx(r)
		defer cancel()
		saved, err := s.Store.UpdateProfile(ctx, prof)
		if err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Update failed", "try again shortly", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
