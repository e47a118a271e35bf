package model

import "time"

// Match.ID is the canonical sorted-pair key, so both participants'
// clients resolve the same document regardless of detection order.
type Match struct {
	ID              string     `json:"id"`
	UserAID         int64      `json:"user_a_id"`
	UserBID         int64      `json:"user_b_id"`
	IsActive        bool       `json:"is_active"`
	LastMessage     string     `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (m Match) OtherUser(userID int64) int64 {
	if m.UserAID == userID {
		return m.UserBID
	}
	return m.UserAID
}

func (m Match) HasParticipant(userID int64) bool {
	return m.UserAID == userID || m.UserBID == userID
}
