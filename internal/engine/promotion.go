package engine

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"failguard/internal/domain"
)

type promotion struct {
	address  string
	rule     string
	duration time.Duration
	failures int
	notes    string
	start    time.Time
}

// RecordFailure counts one classified failure for address under rule and
// bans the address when the rule's threshold is reached. Exactly one caller
// per ban observes Banned == true.
func (e *Engine) RecordFailure(ctx context.Context, address, rule string) domain.BanDecision {
	if address == "" {
		return domain.Denied(address, domain.ReasonEmptyAddress)
	}
	if e.ignore.Contains(address) {
		log.Debug("ignoring failure from listed address", "address", address, "rule", rule)
		return domain.Denied(address, domain.ReasonIgnored)
	}
	if e.isBanned(ctx, address) {
		return domain.Denied(address, domain.ReasonAlreadyBanned)
	}

	threshold := e.policy.MaxFailuresFor(rule)
	now := e.now()

	unlock := e.locks.Lock(address)
	if _, banned := e.bans.Load(address); banned {
		unlock()
		return domain.Denied(address, domain.ReasonAlreadyBanned)
	}

	record, ok := e.tracked.Load(address)
	if !ok {
		record = domain.FailureRecord{Address: address, FirstSeen: now}
	}
	record.Count++
	record.RuleName = rule
	record.LastSeen = now

	if record.Count < threshold {
		e.tracked.Store(address, record)
		unlock()
		log.Debug("failure recorded", "address", address, "rule", rule, "failures", record.Count, "threshold", threshold)
		return domain.Denied(address, domain.ReasonBelowThreshold)
	}

	e.tracked.Delete(address)
	e.bans.Store(address, banEntry{
		pending: true,
		record:  domain.BanRecord{Address: address, RuleName: rule, StartTime: now},
	})
	unlock()

	return e.promote(ctx, promotion{
		address:  address,
		rule:     rule,
		duration: e.policy.BanDurationFor(rule),
		failures: record.Count,
		start:    now,
	})
}

// BlockManually bans address for duration regardless of its failure count.
// A zero duration bans indefinitely.
func (e *Engine) BlockManually(ctx context.Context, address string, duration time.Duration, reason string) domain.BanDecision {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.Denied(address, domain.ReasonEmptyAddress)
	}
	if net.ParseIP(address) == nil {
		return domain.Denied(address, domain.ReasonInvalidAddress)
	}
	if duration < 0 {
		duration = 0
	}

	now := e.now()

	unlock := e.locks.Lock(address)
	if _, banned := e.bans.Load(address); banned {
		unlock()
		return domain.Denied(address, domain.ReasonAlreadyBanned)
	}
	e.tracked.Delete(address)
	e.bans.Store(address, banEntry{
		pending: true,
		record:  domain.BanRecord{Address: address, RuleName: domain.ManualRuleName, StartTime: now},
	})
	unlock()

	return e.promote(ctx, promotion{
		address:  address,
		rule:     domain.ManualRuleName,
		duration: duration,
		notes:    reason,
		start:    now,
	})
}

// promote runs with a pending placeholder installed for p.address. Slow
// enforcement and store calls happen here, outside the address lock.
func (e *Engine) promote(ctx context.Context, p promotion) domain.BanDecision {
	blockCtx, cancel := e.enforceCtx(ctx)
	err := e.enforcer.Block(blockCtx, p.address)
	cancel()
	if err != nil {
		e.bans.CompareAndDelete(p.address, func(entry banEntry) bool { return entry.pending })
		log.Error("failed to block address", "address", p.address, "rule", p.rule, "error", err)
		return domain.Denied(p.address, domain.ReasonEnforcementFail)
	}

	notes := p.notes
	if e.annotator != nil {
		if extra := e.annotator.Annotate(p.address); extra != "" {
			notes = joinNotes(notes, extra)
		}
	}

	ban := domain.NewBan{
		Address:      p.address,
		RuleName:     p.rule,
		Duration:     p.duration,
		FailureCount: p.failures,
		Notes:        notes,
		StartTime:    p.start,
	}

	storeCtx, cancelStore := e.persistCtx(ctx)
	record, err := e.store.InsertBan(storeCtx, ban)
	cancelStore()
	stored := err == nil
	if !stored {
		log.Error("ban enforced but not persisted, it will not be reported", "address", p.address, "rule", p.rule, "error", err)
		record = domain.BanRecord{
			Address:      p.address,
			RuleName:     p.rule,
			StartTime:    p.start,
			EndTime:      domain.EndFor(p.start, p.duration),
			BanSeconds:   int64(p.duration / time.Second),
			Active:       true,
			FailureCount: p.failures,
			Notes:        notes,
		}
	}

	e.bans.Store(p.address, banEntry{record: record})

	log.Info("address banned",
		"address", p.address,
		"rule", p.rule,
		"failures", p.failures,
		"duration", formatBanDuration(p.duration),
	)

	if e.reports != nil && stored {
		e.reports.Dispatch(record)
	}

	return domain.BanDecision{Address: p.address, Banned: true, Reason: domain.ReasonBanned}
}

// isBanned checks memory first and then the store. Store read errors count
// as "not banned" so a flaky store never stops detection.
func (e *Engine) isBanned(ctx context.Context, address string) bool {
	if _, ok := e.bans.Load(address); ok {
		return true
	}
	if e.store == nil {
		return false
	}
	banned, err := e.store.IsBanned(ctx, address)
	if err != nil {
		log.Warn("ban lookup failed, continuing", "address", address, "error", err)
		return false
	}
	return banned
}

func joinNotes(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "; " + b
	}
}

func formatBanDuration(d time.Duration) string {
	if d <= 0 {
		return "indefinite"
	}
	return d.String()
}
