package dto

import (
	"time"

	"failguard/internal/domain"
)

type BanInfo struct {
	domain.BanRecord
	RemainingSeconds int64 `json:"remaining_seconds"`
	Indefinite       bool  `json:"indefinite"`
}

func NewBanInfo(record domain.BanRecord, now time.Time) BanInfo {
	return BanInfo{
		BanRecord:        record,
		RemainingSeconds: int64(record.Remaining(now) / time.Second),
		Indefinite:       record.Indefinite(),
	}
}
