package dto

import "time"

type MatchItemResponse struct {
	ID              string     `json:"id"`
	OtherUserID     int64      `json:"other_user_id"`
	LastMessage     string     `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
	CreatedAt       time.Time  `json:"created_at"`
}

type MatchesResponse struct {
	Items []MatchItemResponse `json:"items"`
}

type UnmatchResponse struct {
	OK bool `json:"ok"`
}
