package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"quiz-round-service/internal/app"
	"quiz-round-service/internal/domain"
)

// Handler exposes the inbound request contract over HTTP.
type Handler struct {
	service *app.RoundService
	hub     *Hub
}

func NewHandler(service *app.RoundService, hub *Hub) *Handler {
	return &Handler{service: service, hub: hub}
}

// Router assembles the route table with permissive CORS.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/question", h.getQuestion)
	mux.HandleFunc("/submit", h.submit)
	mux.HandleFunc("/leaderboard", h.getLeaderboard)
	mux.HandleFunc("/users/register", h.registerUser)
	if h.hub != nil {
		mux.HandleFunc("/ws", h.hub.ServeWS)
	}
	return cors.AllowAll().Handler(mux)
}

func (h *Handler) getQuestion(w http.ResponseWriter, r *http.Request) {
	question, err := h.service.CurrentQuestion(r.Context())
	if errors.Is(err, domain.ErrNoActiveQuestion) {
		writeError(w, http.StatusNotFound, "no_active_question")
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

type submitRequest struct {
	QuestionID string          `json:"questionId"`
	UserID     string          `json:"userId"`
	Answer     json.RawMessage `json:"answer"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	result, err := h.service.Submit(r.Context(), req.QuestionID, req.UserID, rawAnswer(req.Answer))
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// rawAnswer accepts both a JSON number and a numeric string.
func rawAnswer(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	return string(raw)
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "missing_fields")
	case errors.Is(err, domain.ErrInvalidAnswer):
		writeError(w, http.StatusBadRequest, "invalid_answer")
	case errors.Is(err, domain.ErrNoActiveQuestion):
		writeError(w, http.StatusConflict, "no_active_question")
	case errors.Is(err, domain.ErrStaleQuestion):
		writeError(w, http.StatusConflict, "stale_question")
	case errors.Is(err, domain.ErrQuestionClosed):
		writeError(w, http.StatusConflict, "question_intermission")
	case errors.Is(err, domain.ErrQuestionExpired):
		writeError(w, http.StatusConflict, "question_expired")
	default:
		h.internalError(w, err)
	}
}

func (h *Handler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.Leaderboard(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

type registerRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if err := h.service.Register(r.Context(), req.UserID, req.Name); err != nil {
		if errors.Is(err, domain.ErrMissingFields) {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
