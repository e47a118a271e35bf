package handlers

import (
	"errors"
	"net/http"

	"github.com/emberlabs/ember/backend/internal/domain/model"
	"github.com/emberlabs/ember/backend/internal/pkg/validate"
	authsvc "github.com/emberlabs/ember/backend/internal/services/auth"
	chatsvc "github.com/emberlabs/ember/backend/internal/services/chat"
	"github.com/emberlabs/ember/backend/internal/transport/http/dto"
	httperrors "github.com/emberlabs/ember/backend/internal/transport/http/errors"
)

type ChatHandler struct {
	service *chatsvc.Service
}

func NewChatHandler(service *chatsvc.Service) *ChatHandler {
	return &ChatHandler{service: service}
}

func (h *ChatHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	items, err := h.service.ListConversations(r.Context(), identity.UserID)
	if err != nil {
		h.writeError(w, err, "failed to load conversations")
		return
	}

	response := dto.ConversationsResponse{Items: make([]dto.ConversationItemResponse, 0, len(items))}
	for _, item := range items {
		response.Items = append(response.Items, dto.ConversationItemResponse{
			MatchItemResponse: dto.MatchItemResponse{
				ID:              item.ID,
				OtherUserID:     item.OtherUserID,
				LastMessage:     item.LastMessage,
				LastMessageTime: item.LastMessageTime,
				CreatedAt:       item.CreatedAt,
			},
			HasUnread: item.HasUnread,
		})
	}
	httperrors.Write(w, http.StatusOK, response)
}

func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	items, err := h.service.ListMessages(r.Context(), identity.UserID, urlParam(r, "matchID"))
	if err != nil {
		h.writeError(w, err, "failed to load messages")
		return
	}

	httperrors.Write(w, http.StatusOK, messagesResponse(items))
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	matchID := urlParam(r, "matchID")
	if !validate.MatchID(matchID) {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid match id")
		return
	}

	msg, err := h.service.SendMessage(r.Context(), identity.UserID, matchID, req.Text)
	if err != nil {
		h.writeError(w, err, "failed to send message")
		return
	}

	httperrors.Write(w, http.StatusOK, messageResponse(msg))
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkMessagesAsRead(r.Context(), identity.UserID, urlParam(r, "matchID")); err != nil {
		h.writeError(w, err, "failed to mark messages read")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}

func (h *ChatHandler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkConversationAsViewed(r.Context(), identity.UserID, urlParam(r, "matchID")); err != nil {
		h.writeError(w, err, "failed to mark conversation viewed")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}

func (h *ChatHandler) SetTyping(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req dto.TypingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	if err := h.service.SetTypingStatus(r.Context(), identity.UserID, urlParam(r, "matchID"), req.IsTyping); err != nil {
		h.writeError(w, err, "failed to set typing status")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}

func (h *ChatHandler) Typing(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	ids, err := h.service.TypingUsers(r.Context(), identity.UserID, urlParam(r, "matchID"))
	if err != nil {
		h.writeError(w, err, "failed to load typing status")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.TypingResponse{TypingUserIDs: ids})
}

// Unread reports whether the conversation holds anything newer than the
// caller's viewed stamp. The count is 1 or 0, not an exact tally.
func (h *ChatHandler) Unread(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	hasUnread, err := h.service.ConversationHasUnread(r.Context(), identity.UserID, urlParam(r, "matchID"))
	if err != nil {
		h.writeError(w, err, "failed to load unread state")
		return
	}

	count := 0
	if hasUnread {
		count = 1
	}
	httperrors.Write(w, http.StatusOK, dto.UnreadResponse{UnreadCount: count})
}

func (h *ChatHandler) identity(w http.ResponseWriter, r *http.Request) (authsvc.Identity, bool) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return authsvc.Identity{}, false
	}
	if h.service == nil {
		writeInternal(w, "CHAT_SERVICE_UNAVAILABLE", "chat service is unavailable")
		return authsvc.Identity{}, false
	}
	return identity, true
}

func (h *ChatHandler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, chatsvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "invalid chat request")
	case errors.Is(err, chatsvc.ErrEmptyMessage):
		writeBadRequest(w, "VALIDATION_ERROR", "message text is empty")
	case errors.Is(err, chatsvc.ErrMessageTooLong):
		writeBadRequest(w, "VALIDATION_ERROR", "message text is too long")
	case errors.Is(err, chatsvc.ErrMatchNotFound):
		writeNotFound(w, "MATCH_NOT_FOUND", "match not found")
	case errors.Is(err, chatsvc.ErrNotParticipant):
		writeForbidden(w, "FORBIDDEN", "not a participant of the match")
	case errors.Is(err, chatsvc.ErrMatchInactive):
		httperrors.Write(w, http.StatusConflict, httperrors.APIError{
			Code:    "MATCH_INACTIVE",
			Message: "match is no longer active",
		})
	default:
		writeInternal(w, "INTERNAL_ERROR", fallback)
	}
}

func messagesResponse(items []model.Message) dto.MessagesResponse {
	response := dto.MessagesResponse{Items: make([]dto.MessageResponse, 0, len(items))}
	for _, item := range items {
		response.Items = append(response.Items, messageResponse(item))
	}
	return response
}

func messageResponse(msg model.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:        msg.ID.String(),
		MatchID:   msg.MatchID,
		SenderID:  msg.SenderID,
		Text:      msg.Text,
		ReadBy:    msg.ReadBy,
		CreatedAt: msg.CreatedAt,
	}
}
