package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"failguard/internal/domain"
)

// ListBanned returns the active bans held in memory, newest first.
func (e *Engine) ListBanned() []domain.BanRecord {
	entries := e.bans.Snapshot()
	out := make([]domain.BanRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.settled() {
			continue
		}
		out = append(out, entry.record)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// ListTracked returns addresses accumulating failures, most recent first.
func (e *Engine) ListTracked() []domain.FailureRecord {
	out := e.tracked.Snapshot()
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

func (e *Engine) GetBanInfo(address string) (domain.BanRecord, bool) {
	entry, ok := e.bans.Load(address)
	if !ok || !entry.settled() {
		return domain.BanRecord{}, false
	}
	return entry.record, true
}

func (e *Engine) GetTracking(address string) (domain.FailureRecord, bool) {
	return e.tracked.Load(address)
}

// InitializeFromStore loads active bans from the store and re-asserts them
// at the backend. Backend failures are logged; only a store failure is
// returned.
func (e *Engine) InitializeFromStore(ctx context.Context) error {
	records, err := e.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("engine: load active bans: %w", err)
	}

	failed := 0
	for _, record := range records {
		e.tracked.Delete(record.Address)
		if _, loaded := e.bans.LoadOrStore(record.Address, banEntry{record: record}); loaded {
			continue
		}

		blockCtx, cancel := e.enforceCtx(ctx)
		err := e.enforcer.Block(blockCtx, record.Address)
		cancel()
		if err != nil {
			failed++
			log.Warn("failed to re-apply stored ban", "address", record.Address, "error", err)
		}
	}

	log.Info("restored active bans", "count", len(records), "failed", failed)
	return nil
}
