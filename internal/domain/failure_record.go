package domain

import "time"

// FailureRecord accumulates classified failures for one address until it is
// promoted to a ban or cleared.
type FailureRecord struct {
	Address   string    `json:"address"`
	RuleName  string    `json:"rule"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}
