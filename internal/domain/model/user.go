package model

import "time"

type User struct {
	ID           int64     `json:"id"`
	DisplayName  string    `json:"display_name"`
	Gender       string    `json:"gender"`
	InterestedIn []string  `json:"interested_in"`
	Latitude     *float64  `json:"latitude"`
	Longitude    *float64  `json:"longitude"`
	IsActive     bool      `json:"is_active"`
	TotalLikes   int64     `json:"total_likes"`
	TotalMatches int64     `json:"total_matches"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
