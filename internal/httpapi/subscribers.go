package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"

	"github.com/fernmail/fern/internal/models"
	"github.com/fernmail/fern/internal/repository"
)

// SubscriberRequest is the request body for POST /subscribers
type SubscriberRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

// UnsubscribeRequest is the request body for POST /subscribers/unsubscribe
type UnsubscribeRequest struct {
	Email string `json:"email"`
}

// SubscriberListResponse is the response for GET /subscribers
type SubscriberListResponse struct {
	Subscribers []models.Subscriber `json:"subscribers"`
	Total       int                 `json:"total"`
}

func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	subscribers, err := s.subscribers.Subscribed(r.Context())
	if err != nil {
		s.logger.Error("failed to list subscribers", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to list subscribers")
		return
	}
	s.sendJSON(w, http.StatusOK, SubscriberListResponse{
		Subscribers: subscribers,
		Total:       len(subscribers),
	})
}

func (s *Server) handleCreateSubscriber(w http.ResponseWriter, r *http.Request) {
	var req SubscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	sub := &models.Subscriber{Email: req.Email, Username: req.Username}
	if err := s.subscribers.Create(r.Context(), sub); err != nil {
		s.logger.Error("failed to create subscriber", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to create subscriber")
		return
	}
	s.sendJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		s.sendError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := s.subscribers.Unsubscribe(r.Context(), req.Email); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		s.logger.Error("failed to unsubscribe", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
