package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"failguard/internal/domain"
)

const topListSize = 10

// BanStore is the durable ban history. All timestamps are stored in UTC.
type BanStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewBanStore(db *gorm.DB) *BanStore {
	return &BanStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *BanStore) conn(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialised
	}
	db := s.db
	if ctx != nil {
		db = db.WithContext(ctx)
	}
	return db, nil
}

// activeScope restricts a query to records still banning their address.
func activeScope(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("active = ? AND (end_time IS NULL OR end_time > ?)", true, now)
	}
}

func (s *BanStore) IsBanned(ctx context.Context, address string) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}

	var count int64
	if err := db.Model(&domain.BanRecord{}).
		Scopes(activeScope(s.now())).
		Where("address = ?", address).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("database: check ban for %s: %w", address, err)
	}
	return count > 0, nil
}

// GetActiveBan returns the current ban for address, or nil when none exists.
func (s *BanStore) GetActiveBan(ctx context.Context, address string) (*domain.BanRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return firstOrNil(db.Scopes(activeScope(s.now())).
		Where("address = ?", address).
		Order("start_time DESC"))
}

// InsertBan opens a ban term. When the address already has an active ban the
// existing record is returned unchanged.
func (s *BanStore) InsertBan(ctx context.Context, ban domain.NewBan) (domain.BanRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.BanRecord{}, err
	}

	now := s.now()
	start := ban.StartTime.UTC()
	if ban.StartTime.IsZero() {
		start = now
	}

	var record domain.BanRecord
	err = db.Transaction(func(tx *gorm.DB) error {
		existing, err := firstOrNil(tx.Scopes(activeScope(now)).
			Where("address = ?", ban.Address).
			Order("start_time DESC"))
		if err != nil {
			return err
		}
		if existing != nil {
			record = *existing
			return nil
		}

		record = domain.BanRecord{
			Address:      ban.Address,
			RuleName:     ban.RuleName,
			StartTime:    start,
			EndTime:      domain.EndFor(start, ban.Duration),
			BanSeconds:   int64(ban.Duration / time.Second),
			Active:       true,
			FailureCount: ban.FailureCount,
			Notes:        ban.Notes,
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return domain.BanRecord{}, fmt.Errorf("database: insert ban for %s: %w", ban.Address, err)
	}
	return record, nil
}

func (s *BanStore) UpdateBan(ctx context.Context, record *domain.BanRecord) error {
	if record == nil || record.ID == 0 {
		return errors.New("database: update ban requires a stored record")
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.Save(record).Error; err != nil {
		return fmt.Errorf("database: update ban %d: %w", record.ID, err)
	}
	return nil
}

// Deactivate ends every active ban for address. Bans still running get now
// as their end time; timed bans that already ran out but were not swept yet
// keep their original end.
func (s *BanStore) Deactivate(ctx context.Context, address string) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	var affected int64
	err = db.Transaction(func(tx *gorm.DB) error {
		running := tx.Model(&domain.BanRecord{}).
			Where("address = ? AND active = ? AND (end_time IS NULL OR end_time > ?)", address, true, now).
			Updates(map[string]any{"active": false, "end_time": now})
		if running.Error != nil {
			return running.Error
		}
		elapsed := tx.Model(&domain.BanRecord{}).
			Where("address = ? AND active = ?", address, true).
			Update("active", false)
		if elapsed.Error != nil {
			return elapsed.Error
		}
		affected = running.RowsAffected + elapsed.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("database: deactivate %s: %w", address, err)
	}
	return affected, nil
}

// DeactivateExpired flips timed bans whose end time has passed.
func (s *BanStore) DeactivateExpired(ctx context.Context) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	res := db.Model(&domain.BanRecord{}).
		Where("active = ? AND end_time IS NOT NULL AND end_time <= ?", true, s.now()).
		Update("active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("database: deactivate expired bans: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *BanStore) ListActive(ctx context.Context) ([]domain.BanRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var records []domain.BanRecord
	if err := db.Scopes(activeScope(s.now())).
		Order("start_time DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("database: list active bans: %w", err)
	}
	return records, nil
}

// ListBetween returns bans that started within [from, to], newest first.
func (s *BanStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.BanRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var records []domain.BanRecord
	if err := db.Where("start_time >= ? AND start_time <= ?", from.UTC(), to.UTC()).
		Order("start_time DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("database: list bans between: %w", err)
	}
	return records, nil
}

func (s *BanStore) WasReportedWithin(ctx context.Context, address string, window time.Duration) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}

	var count int64
	if err := db.Model(&domain.BanRecord{}).
		Where("address = ? AND reported_at IS NOT NULL AND reported_at >= ?", address, s.now().Add(-window)).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("database: report lookup for %s: %w", address, err)
	}
	return count > 0, nil
}

func (s *BanStore) MarkReported(ctx context.Context, id uint64) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	res := db.Model(&domain.BanRecord{}).Where("id = ?", id).Update("reported_at", s.now())
	if res.Error != nil {
		return fmt.Errorf("database: mark ban %d reported: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("database: mark ban %d reported: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// GetLatestFor returns the most recent record for address, active or not.
func (s *BanStore) GetLatestFor(ctx context.Context, address string) (*domain.BanRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return firstOrNil(db.Where("address = ?", address).Order("start_time DESC"))
}

func (s *BanStore) GetStatistics(ctx context.Context) (domain.BanStatistics, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.BanStatistics{}, err
	}

	now := s.now()
	local := now.In(time.Local)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local)
	weekStart := today.AddDate(0, 0, -int(today.Weekday()))

	var stats domain.BanStatistics
	model := func() *gorm.DB { return db.Model(&domain.BanRecord{}) }

	if err := model().Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("database: count bans: %w", err)
	}
	if err := model().Scopes(activeScope(now)).Count(&stats.Active).Error; err != nil {
		return stats, fmt.Errorf("database: count active bans: %w", err)
	}
	if err := model().Where("start_time >= ?", today.UTC()).Count(&stats.Today).Error; err != nil {
		return stats, fmt.Errorf("database: count bans today: %w", err)
	}
	if err := model().Where("start_time >= ?", weekStart.UTC()).Count(&stats.ThisWeek).Error; err != nil {
		return stats, fmt.Errorf("database: count bans this week: %w", err)
	}

	if stats.TopAddresses, err = topBy(model(), "address"); err != nil {
		return stats, fmt.Errorf("database: top addresses: %w", err)
	}
	if stats.TopRules, err = topBy(model(), "rule_name"); err != nil {
		return stats, fmt.Errorf("database: top rules: %w", err)
	}
	return stats, nil
}

func topBy(db *gorm.DB, column string) ([]domain.CountByKey, error) {
	var rows []struct {
		Bucket string
		Total  int64
	}
	if err := db.Select(column + " AS bucket, COUNT(*) AS total").
		Group(column).
		Order("total DESC").
		Order("bucket ASC").
		Limit(topListSize).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domain.CountByKey, len(rows))
	for i, row := range rows {
		out[i] = domain.CountByKey{Key: row.Bucket, Count: row.Total}
	}
	return out, nil
}

func firstOrNil(query *gorm.DB) (*domain.BanRecord, error) {
	var record domain.BanRecord
	err := query.First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
