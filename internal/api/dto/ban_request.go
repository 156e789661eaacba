package dto

// BlockRequest is the body of a manual block. A zero duration bans
// indefinitely.
type BlockRequest struct {
	Address         string `json:"address"`
	DurationSeconds int64  `json:"duration_seconds"`
	Reason          string `json:"reason"`
}
