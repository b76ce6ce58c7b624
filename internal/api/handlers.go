package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/wolfeidau/switchboard/internal/auth"
	"github.com/wolfeidau/switchboard/internal/inbox"
	"github.com/wolfeidau/switchboard/internal/models"
)

const maxRequestBody = 64 << 10

type sendMessageRequest struct {
	ContactID   string `json:"contactId" validate:"required"`
	MessageBody string `json:"messageBody" validate:"required"`
}

// member resolves the authenticated user to their membership, creating a team on first sight.
func (s *Server) member(r *http.Request) (*models.User, *models.Membership, error) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		return nil, nil, inbox.ErrUnauthorized
	}

	membership, err := s.onboarding.Ensure(r.Context(), user)
	if err != nil {
		return nil, nil, err
	}

	return user, membership, nil
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	_, membership, err := s.member(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	convs, err := s.projector.List(r.Context(), membership.TeamID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondCacheable(w, r, toConversationViews(convs))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "contactId")
	if rawID == "" {
		respondError(w, r, fmt.Errorf("%w: contact id is required", inbox.ErrBadRequest))
		return
	}

	_, membership, err := s.member(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	// a malformed id names no contact
	contactID, err := uuid.Parse(rawID)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: contact %s", inbox.ErrNotFound, rawID))
		return
	}

	msgs, err := s.history.List(r.Context(), membership.TeamID, contactID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondCacheable(w, r, toMessageViews(msgs))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("%w: invalid JSON body", inbox.ErrBadRequest))
		return
	}
	if err := validateRequest(&req); err != nil {
		respondError(w, r, err)
		return
	}

	user, membership, err := s.member(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	contactID, err := uuid.Parse(req.ContactID)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: contact %s", inbox.ErrNotFound, req.ContactID))
		return
	}

	msg, err := s.dispatcher.Send(r.Context(), user, membership, contactID, req.MessageBody)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, toSentMessageView(msg))
}
