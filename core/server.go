package core

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Server exposes the session core to the frontend over HTTP.
type Server struct {
	manager *SessionManager
	guard   *RouteGuard
	metrics *Metrics
}

func NewServer(manager *SessionManager, guard *RouteGuard, metrics *Metrics) *Server {
	return &Server{
		manager: manager,
		guard:   guard,
		metrics: metrics,
	}
}

// Routes builds the router for the session endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.HandleHealth)
	r.Get("/guard", s.HandleGuard)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.HandleGetSession)
		r.Post("/signin", s.HandleSignIn)
		r.Post("/signout", s.HandleSignOut)
		r.Patch("/profile", s.HandleUpdateProfile)
		r.Post("/reset-password", s.HandleResetPassword)
	})

	return r
}

func (s *Server) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.manager.Snapshot())
}

func (s *Server) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	if err := s.manager.SignIn(r.Context(), req.Email, req.Password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", UserMessage(err))
			return
		}
		respondError(w, http.StatusBadGateway, "provider_unavailable", UserMessage(err))
		return
	}

	respondJSON(w, http.StatusOK, s.manager.Snapshot())
}

func (s *Server) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	// Local state is cleared even when the provider call failed, so
	// sign-out never reports limbo to the caller.
	err := s.manager.SignOut(r.Context())

	resp := struct {
		State   SessionState `json:"state"`
		Warning string       `json:"warning,omitempty"`
	}{
		State: s.manager.Snapshot(),
	}
	if err != nil {
		resp.Warning = UserMessage(err)
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := s.manager.UpdateProfile(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotAuthenticated):
			respondError(w, http.StatusUnauthorized, "not_authenticated", UserMessage(err))
		case errors.Is(err, ErrProfileNotFound):
			respondError(w, http.StatusNotFound, "profile_not_found", UserMessage(err))
		default:
			respondError(w, http.StatusBadGateway, "provider_unavailable", UserMessage(err))
		}
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}

	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Email == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	if err := s.manager.ResetPassword(r.Context(), req.Email); err != nil {
		respondError(w, http.StatusBadGateway, "provider_unavailable", UserMessage(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "reset_email_sent",
	})
}

func (s *Server) HandleGuard(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "path query parameter is required")
		return
	}

	decision := s.guard.Evaluate(path, s.manager.Snapshot())
	s.metrics.RecordGuardDecision(decision.Action)

	respondJSON(w, http.StatusOK, decision)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Helper functions

func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
