// Package report forwards new bans to an abuse-reputation service, at most
// once per address per interval.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"failguard/internal/domain"
)

// Store is the report bookkeeping kept alongside ban history.
type Store interface {
	WasReportedWithin(ctx context.Context, address string, window time.Duration) (bool, error)
	MarkReported(ctx context.Context, id uint64) error
}

// Transport delivers one report.
type Transport interface {
	Send(ctx context.Context, address string, category int, comment string) error
}

type GateConfig struct {
	Enabled     bool
	Category    int
	MinInterval time.Duration
	Templates   map[string]string
}

type Gate struct {
	store     Store
	transport Transport
	templates Templates
	category  int
	interval  time.Duration
	enabled   bool
}

func NewGate(store Store, transport Transport, cfg GateConfig) *Gate {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 24 * time.Hour
	}
	if cfg.Category <= 0 {
		cfg.Category = 18
	}
	return &Gate{
		store:     store,
		transport: transport,
		templates: Templates(cfg.Templates),
		category:  cfg.Category,
		interval:  cfg.MinInterval,
		enabled:   cfg.Enabled && transport != nil,
	}
}

func (g *Gate) Enabled() bool {
	return g != nil && g.enabled
}

// MaybeReport sends a report for record unless reporting is off or the
// address was reported within the interval. A failed lookup, or a ban
// that never reached the store, skips the report. It returns whether a report went out.
func (g *Gate) MaybeReport(ctx context.Context, record domain.BanRecord) (bool, error) {
	if !g.Enabled() {
		return false, nil
	}
	if record.ID == 0 {
		return false, fmt.Errorf("report: ban for %s was never stored, skipping", record.Address)
	}

	reported, err := g.store.WasReportedWithin(ctx, record.Address, g.interval)
	if err != nil {
		return false, fmt.Errorf("report: lookup for %s, skipping: %w", record.Address, err)
	}
	if reported {
		log.Debug("address reported recently, skipping", "address", record.Address, "interval", g.interval)
		return false, nil
	}

	comment := g.templates.Render(record)
	if err := g.transport.Send(ctx, record.Address, g.category, comment); err != nil {
		return false, fmt.Errorf("report: send for %s: %w", record.Address, err)
	}

	log.Info("address reported", "address", record.Address, "rule", record.RuleName, "category", g.category)

	if err := g.store.MarkReported(ctx, record.ID); err != nil {
		return true, fmt.Errorf("report: mark %s reported: %w", record.Address, err)
	}
	return true, nil
}
