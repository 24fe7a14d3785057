// Package api exposes HTTP handlers for the exercise tracker.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"example.com/exercisetracker/internal/domain"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/exercise/new-user", h.newUser)
	mux.HandleFunc("/api/exercise/users", h.users)
	mux.HandleFunc("/api/exercise/add", h.addExercise)
	mux.HandleFunc("/api/exercise/log", h.exerciseLog)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) newUser(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	req, err := parseNewUser(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), req.Username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user))
}

func (h *Handler) users(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items := make([]UserView, 0, len(users))
	for _, user := range users {
		items = append(items, toUserView(user))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) addExercise(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	req, err := parseAddExercise(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.service.AddExercise(r.Context(), domain.AddExerciseInput{
		UserID:      req.UserID,
		Description: req.Description,
		Duration:    req.Duration,
		Date:        req.Date,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPopulatedUserView(*user))
}

func (h *Handler) exerciseLog(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	req, err := parseLog(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	records, err := h.service.QueryLog(r.Context(), domain.LogQuery{
		UserID: req.UserID,
		From:   req.From,
		To:     req.To,
		Limit:  req.Limit,
	})
	if errors.Is(err, domain.ErrNoData) {
		// An empty log is reported as a successful lookup carrying an error marker.
		writeJSON(w, http.StatusOK, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExerciseViews(records))
}

// fail maps domain errors onto HTTP statuses. Anything unexpected is logged
// and reported as a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}
