package dto

type FeedCandidateResponse struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type FeedResponse struct {
	Items []FeedCandidateResponse `json:"items"`
}
