package handlers

import (
	"errors"
	"net/http"

	authsvc "github.com/emberlabs/ember/backend/internal/services/auth"
	queuesvc "github.com/emberlabs/ember/backend/internal/services/queue"
	"github.com/emberlabs/ember/backend/internal/transport/http/dto"
	httperrors "github.com/emberlabs/ember/backend/internal/transport/http/errors"
)

type QueueHandler struct {
	manager *queuesvc.Manager
}

func NewQueueHandler(manager *queuesvc.Manager) *QueueHandler {
	return &QueueHandler{manager: manager}
}

// Window returns the top card plus the lookahead behind it.
func (h *QueueHandler) Window(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	items := session.Window()
	response := dto.QueueWindowResponse{Items: make([]dto.QueueCandidateResponse, 0, len(items))}
	for _, item := range items {
		response.Items = append(response.Items, dto.QueueCandidateResponse{
			UserID:      item.UserID,
			DisplayName: item.DisplayName,
		})
	}
	httperrors.Write(w, http.StatusOK, response)
}

// Advance consumes the top card in the given direction.
func (h *QueueHandler) Advance(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req dto.QueueAdvanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	var direction queuesvc.Direction
	switch req.Direction {
	case "left":
		direction = queuesvc.DirectionLeft
	case "right":
		direction = queuesvc.DirectionRight
	default:
		writeBadRequest(w, "VALIDATION_ERROR", "direction must be left or right")
		return
	}

	consumed, err := session.Advance(r.Context(), direction)
	h.respondAdvance(w, consumed, err)
}

// SuperLike consumes the top card as an explicit super like.
func (h *QueueHandler) SuperLike(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	consumed, err := session.SuperLike(r.Context())
	h.respondAdvance(w, consumed, err)
}

// Reset rebuilds the caller's queue from a fresh candidate batch.
func (h *QueueHandler) Reset(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.manager == nil {
		writeInternal(w, "QUEUE_SERVICE_UNAVAILABLE", "queue service is unavailable")
		return
	}

	h.manager.Drop(identity.UserID)
	if _, err := h.manager.GetOrCreate(r.Context(), identity.UserID); err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to rebuild queue")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}

func (h *QueueHandler) respondAdvance(w http.ResponseWriter, consumed queuesvc.Candidate, err error) {
	if err != nil {
		switch {
		case errors.Is(err, queuesvc.ErrBusy):
			httperrors.Write(w, http.StatusTooManyRequests, httperrors.APIError{
				Code:    "SWIPE_IN_PROGRESS",
				Message: "previous swipe is still processing",
			})
		case errors.Is(err, queuesvc.ErrExhausted):
			httperrors.Write(w, http.StatusOK, dto.QueueAdvanceResponse{OK: false, Exhausted: true})
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to advance queue")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.QueueAdvanceResponse{
		OK:       true,
		Consumed: consumed.UserID,
	})
}

func (h *QueueHandler) session(w http.ResponseWriter, r *http.Request) (*queuesvc.Session, bool) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return nil, false
	}
	if h.manager == nil {
		writeInternal(w, "QUEUE_SERVICE_UNAVAILABLE", "queue service is unavailable")
		return nil, false
	}

	session, err := h.manager.GetOrCreate(r.Context(), identity.UserID)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to load queue")
		return nil, false
	}
	return session, true
}
