package dto

import "time"

type SendMessageRequest struct {
	Text string `json:"text"`
}

type MessageResponse struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	SenderID  int64     `json:"sender_id"`
	Text      string    `json:"text"`
	ReadBy    []int64   `json:"read_by"`
	CreatedAt time.Time `json:"created_at"`
}

type MessagesResponse struct {
	Items []MessageResponse `json:"items"`
}

type ConversationItemResponse struct {
	MatchItemResponse
	HasUnread bool `json:"has_unread"`
}

type ConversationsResponse struct {
	Items []ConversationItemResponse `json:"items"`
}

type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

type TypingResponse struct {
	TypingUserIDs []int64 `json:"typing_user_ids"`
}

type UnreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}
