package maintenance

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"failguard/internal/support"
)

const (
	envSweepInterval     = "FAILGUARD_SWEEP_INTERVAL"
	defaultSweepInterval = time.Minute
)

// ExpirySweeper lifts bans whose term has ended and reports how many it
// lifted.
type ExpirySweeper interface {
	CleanupExpired(ctx context.Context) int
}

// RunExpirySweeper sweeps once immediately and then on every tick until ctx
// is cancelled.
func RunExpirySweeper(ctx context.Context, sweeper ExpirySweeper, interval time.Duration) {
	if ctx == nil {
		ctx = context.Background()
	}

	interval = resolveSweepInterval(interval)
	log.Info("Expiry sweeper started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runSweep(ctx, sweeper)

	for {
		select {
		case <-ctx.Done():
			log.Debug("Expiry sweeper stopped")
			return
		case <-ticker.C:
			runSweep(ctx, sweeper)
		}
	}
}

func resolveSweepInterval(configured time.Duration) time.Duration {
	if fromEnv := support.GetEnvDuration(envSweepInterval, 0); fromEnv > 0 {
		return fromEnv
	}
	if configured <= 0 {
		return defaultSweepInterval
	}
	return configured
}

func runSweep(ctx context.Context, sweeper ExpirySweeper) {
	start := time.Now()

	lifted := sweeper.CleanupExpired(ctx)
	if lifted == 0 {
		return
	}

	log.Info(
		"Expired bans lifted",
		"count", lifted,
		"duration", time.Since(start),
	)
}
