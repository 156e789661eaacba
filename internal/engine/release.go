package engine

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

// UnblockManually lifts the ban on address. The durable record is ended
// first; if the backend then fails, the in-memory ban is restored and the
// error returned. Without an in-memory entry the backend is still asked to
// unblock. Until the backend answers the address stays banned in memory.
func (e *Engine) UnblockManually(ctx context.Context, address string) error {
	if address == "" {
		return fmt.Errorf("engine: unblock: empty address")
	}

	unlock := e.locks.Lock(address)
	entry, had := e.bans.Load(address)
	switch {
	case had && entry.pending:
		unlock()
		return fmt.Errorf("engine: unblock %s: %w", address, ErrPromotionPending)
	case had && entry.releasing:
		unlock()
		return fmt.Errorf("engine: unblock %s: %w", address, ErrReleasePending)
	}
	placeholder := banEntry{record: entry.record, releasing: true}
	placeholder.record.Address = address
	e.bans.Store(address, placeholder)
	unlock()

	storeCtx, cancelStore := e.persistCtx(ctx)
	if _, err := e.store.Deactivate(storeCtx, address); err != nil {
		log.Error("failed to end ban record", "address", address, "error", err)
	}
	cancelStore()

	unblockCtx, cancel := e.enforceCtx(ctx)
	err := e.enforcer.Unblock(unblockCtx, address)
	cancel()
	if err != nil {
		e.settleRelease(address, entry, had)
		log.Error("failed to unblock address", "address", address, "error", err)
		return fmt.Errorf("engine: unblock %s: %w", address, err)
	}

	e.settleRelease(address, banEntry{}, false)
	e.tracked.Delete(address)
	log.Info("address unbanned", "address", address, "had_ban", had)
	return nil
}

// settleRelease replaces the releasing placeholder for address with
// restore, or drops it when keep is false.
func (e *Engine) settleRelease(address string, restore banEntry, keep bool) {
	unlock := e.locks.Lock(address)
	defer unlock()
	cur, ok := e.bans.Load(address)
	if !ok || !cur.releasing {
		return
	}
	if keep {
		e.bans.Store(address, restore)
		return
	}
	e.bans.Delete(address)
}

// CleanupExpired ends timed bans whose end time has passed and returns how
// many were lifted at the backend. Indefinite bans are never touched. A
// failed unblock leaves the ban in memory for the next sweep.
func (e *Engine) CleanupExpired(ctx context.Context) int {
	if n, err := e.store.DeactivateExpired(ctx); err != nil {
		log.Error("failed to deactivate expired ban records", "error", err)
	} else if n > 0 {
		log.Debug("deactivated expired ban records", "count", n)
	}

	now := e.now()
	lifted := 0

	for _, entry := range e.bans.Snapshot() {
		if !entry.settled() || !entry.record.ExpiredAt(now) {
			continue
		}
		address := entry.record.Address

		unlock := e.locks.Lock(address)
		cur, ok := e.bans.Load(address)
		claimed := ok && cur.settled() && cur.record.ExpiredAt(now)
		if claimed {
			entry = cur
			e.bans.Store(address, banEntry{record: cur.record, releasing: true})
		}
		unlock()
		if !claimed {
			continue
		}

		unblockCtx, cancel := e.enforceCtx(ctx)
		err := e.enforcer.Unblock(unblockCtx, address)
		cancel()
		if err != nil {
			e.settleRelease(address, entry, true)
			log.Error("failed to lift expired ban, will retry", "address", address, "error", err)
			continue
		}

		e.settleRelease(address, banEntry{}, false)
		e.tracked.Delete(address)
		lifted++
		log.Info("ban expired", "address", address, "rule", entry.record.RuleName)
	}

	return lifted
}

// ClearTracking drops the failure record for address.
func (e *Engine) ClearTracking(address string) bool {
	unlock := e.locks.Lock(address)
	defer unlock()
	return e.tracked.Delete(address)
}
