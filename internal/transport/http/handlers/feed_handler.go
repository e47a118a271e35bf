package handlers

import (
	"errors"
	"net/http"

	authsvc "github.com/emberlabs/ember/backend/internal/services/auth"
	feedsvc "github.com/emberlabs/ember/backend/internal/services/feed"
	"github.com/emberlabs/ember/backend/internal/transport/http/dto"
	httperrors "github.com/emberlabs/ember/backend/internal/transport/http/errors"
)

type FeedHandler struct {
	service *feedsvc.Service
}

func NewFeedHandler(service *feedsvc.Service) *FeedHandler {
	return &FeedHandler{service: service}
}

// Get returns a raw candidate batch for the caller. The queue endpoints are
// the usual consumer; this one serves clients that manage their own deck.
func (h *FeedHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "FEED_SERVICE_UNAVAILABLE", "feed service is unavailable")
		return
	}

	limit := int(parseIntOrDefault(r.URL.Query().Get("limit"), 0))

	items, err := h.service.NextBatch(r.Context(), identity.UserID, nil, limit)
	if err != nil {
		switch {
		case errors.Is(err, feedsvc.ErrViewerNotFound):
			writeNotFound(w, "VIEWER_NOT_FOUND", "viewer profile not found")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to load candidates")
		}
		return
	}

	responseItems := make([]dto.FeedCandidateResponse, 0, len(items))
	for _, item := range items {
		responseItems = append(responseItems, dto.FeedCandidateResponse{
			UserID:      item.UserID,
			DisplayName: item.DisplayName,
		})
	}
	httperrors.Write(w, http.StatusOK, dto.FeedResponse{Items: responseItems})
}
