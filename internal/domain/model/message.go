package model

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID        uuid.UUID `json:"id"`
	MatchID   string    `json:"match_id"`
	SenderID  int64     `json:"sender_id"`
	Text      string    `json:"text"`
	ReadBy    []int64   `json:"read_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (m Message) ReadByUser(userID int64) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
