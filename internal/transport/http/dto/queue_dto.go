package dto

type QueueCandidateResponse struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type QueueWindowResponse struct {
	Items []QueueCandidateResponse `json:"items"`
}

type QueueAdvanceRequest struct {
	Direction string `json:"direction"`
}

type QueueAdvanceResponse struct {
	OK        bool  `json:"ok"`
	Consumed  int64 `json:"consumed_user_id"`
	Exhausted bool  `json:"exhausted"`
}
