package handlers

import (
	"errors"
	"net/http"

	"github.com/emberlabs/ember/backend/internal/pkg/validate"
	authsvc "github.com/emberlabs/ember/backend/internal/services/auth"
	swipesvc "github.com/emberlabs/ember/backend/internal/services/swipes"
	"github.com/emberlabs/ember/backend/internal/transport/http/dto"
	httperrors "github.com/emberlabs/ember/backend/internal/transport/http/errors"
)

type SwipeHandler struct {
	service *swipesvc.Service
}

func NewSwipeHandler(service *swipesvc.Service) *SwipeHandler {
	return &SwipeHandler{service: service}
}

func (h *SwipeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	var req dto.SwipeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if !validate.PositiveID(req.TargetID) || !validate.Required(req.Action) {
		writeBadRequest(w, "VALIDATION_ERROR", "target_id and action are required")
		return
	}

	result, err := h.service.RecordSwipe(r.Context(), identity.UserID, req.TargetID, req.Action)
	if err != nil {
		switch {
		case errors.Is(err, swipesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid swipe request")
		case errors.Is(err, swipesvc.ErrUnsupportedAction):
			writeBadRequest(w, "VALIDATION_ERROR", "unsupported action")
		default:
			if tf, ok := swipesvc.IsTooFast(err); ok {
				httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
					Code:          "TOO_FAST",
					Message:       "too many like actions, slow down",
					RetryAfterSec: tf.RetryAfterSec,
				})
				return
			}
			writeInternal(w, "INTERNAL_ERROR", "failed to process swipe")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.SwipeResponse{
		OK:      result.Success,
		IsMatch: result.IsMatch,
		MatchID: result.MatchID,
	})
}

// Get returns the caller's recorded swipe toward a target, if any.
func (h *SwipeHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	targetID := parseIntOrDefault(urlParam(r, "targetID"), 0)
	if targetID <= 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "target id is required")
		return
	}

	rec, err := h.service.GetSwipe(r.Context(), identity.UserID, targetID)
	if err != nil {
		switch {
		case errors.Is(err, swipesvc.ErrSwipeNotFound):
			writeNotFound(w, "SWIPE_NOT_FOUND", "no swipe recorded for target")
		case errors.Is(err, swipesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid swipe lookup")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to load swipe")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.SwipeItemResponse{
		SenderID:   rec.SenderID,
		ReceiverID: rec.ReceiverID,
		Action:     string(rec.Action),
		CreatedAt:  rec.CreatedAt,
	})
}
