package domain

import "time"

// BanRecord is one ban term for an address. Records are never deleted; an
// unban or expiry only flips Active and, for unbans, stamps EndTime.
type BanRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	Address  string `gorm:"size:45;index;not null" json:"address"`
	RuleName string `gorm:"size:128;index;not null;default:''" json:"rule"`

	StartTime time.Time `gorm:"index;not null" json:"start_time"`
	// EndTime is nil for an indefinite ban.
	EndTime *time.Time `gorm:"index" json:"end_time,omitempty"`
	// BanSeconds is the requested duration, 0 for indefinite.
	BanSeconds int64 `gorm:"not null;default:0" json:"ban_seconds"`

	Active       bool   `gorm:"index;not null;default:true" json:"active"`
	FailureCount int    `gorm:"not null;default:0" json:"failure_count"`
	Notes        string `gorm:"size:1024;not null;default:''" json:"notes,omitempty"`

	ReportedAt *time.Time `gorm:"index" json:"reported_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewBan carries everything needed to open a ban term.
type NewBan struct {
	Address      string
	RuleName     string
	Duration     time.Duration
	FailureCount int
	Notes        string
	StartTime    time.Time
}

// Duration returns the requested ban length, zero meaning indefinite.
func (r BanRecord) Duration() time.Duration {
	return time.Duration(r.BanSeconds) * time.Second
}

func (r BanRecord) Indefinite() bool {
	return r.EndTime == nil
}

// ExpiredAt reports whether a timed ban has run out at now. Indefinite bans
// never expire.
func (r BanRecord) ExpiredAt(now time.Time) bool {
	if r.EndTime == nil {
		return false
	}
	return !r.EndTime.After(now)
}

// ActiveAt reports whether the record still bans its address at now.
func (r BanRecord) ActiveAt(now time.Time) bool {
	return r.Active && !r.ExpiredAt(now)
}

// Remaining is the time left on a timed ban, zero for expired or indefinite
// records.
func (r BanRecord) Remaining(now time.Time) time.Duration {
	if r.EndTime == nil || !r.EndTime.After(now) {
		return 0
	}
	return r.EndTime.Sub(now)
}

// EndFor computes the end time of a ban starting at start, nil when the
// duration is indefinite.
func EndFor(start time.Time, d time.Duration) *time.Time {
	if d <= 0 {
		return nil
	}
	end := start.Add(d)
	return &end
}
