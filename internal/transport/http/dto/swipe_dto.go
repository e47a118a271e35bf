package dto

import "time"

type SwipeRequest struct {
	TargetID int64  `json:"target_id"`
	Action   string `json:"action"`
}

type SwipeResponse struct {
	OK      bool   `json:"ok"`
	IsMatch bool   `json:"is_match"`
	MatchID string `json:"match_id,omitempty"`
}

type SwipeItemResponse struct {
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Action     string    `json:"action"`
	CreatedAt  time.Time `json:"created_at"`
}
