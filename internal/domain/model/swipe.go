package model

import (
	"time"

	"github.com/emberlabs/ember/backend/internal/domain/enums"
)

// Swipe is keyed by the ordered (sender, receiver) pair; a repeat write
// for the same pair overwrites the previous decision instead of adding a row.
type Swipe struct {
	SenderID   int64             `json:"sender_id"`
	ReceiverID int64             `json:"receiver_id"`
	Action     enums.SwipeAction `json:"action"`
	CreatedAt  time.Time         `json:"created_at"`
}
