package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"failguard/internal/app/server"
	"failguard/internal/app/version"
	"failguard/internal/auth"
	"failguard/internal/classifier"
	"failguard/internal/config"
	"failguard/internal/database"
	"failguard/internal/engine"
	"failguard/internal/firewall"
	"failguard/internal/geolite"
	"failguard/internal/ingest/eventlog"
	"failguard/internal/ingest/logfile"
	"failguard/internal/jobs/maintenance"
	"failguard/internal/jobs/runtime"
	"failguard/internal/report"
	"failguard/internal/report/abuseipdb"
	"failguard/internal/support"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return Run(ctx, cfg)
	},
}

// components holds everything the agent runs with. Optional parts are nil
// when disabled.
type components struct {
	cfg        config.Config
	db         *gorm.DB
	store      *database.BanStore
	backend    firewall.Backend
	classifier *classifier.Classifier
	engine     *engine.Engine
	dispatcher *report.Dispatcher
	annotator  *geolite.Annotator
}

func buildComponents(cfg config.Config, backend firewall.Backend) (*components, error) {
	c := &components{cfg: cfg, backend: backend}

	if c.backend == nil {
		fw, err := firewall.New(cfg.Firewall)
		if err != nil {
			return nil, err
		}
		c.backend = fw
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	c.db = db
	c.store = database.NewBanStore(db)

	ignore, err := support.ParseIgnoreList(cfg.Policy.Ignore)
	if err != nil {
		return nil, fmt.Errorf("ignore list: %w", err)
	}

	c.annotator, err = geolite.Open(cfg.GeoLite)
	if err != nil {
		log.Warn("GeoLite enrichment disabled", "error", err)
		c.annotator = nil
	}

	opts := []engine.Option{
		engine.WithIgnoreList(ignore),
		engine.WithEnforcementTimeout(cfg.Firewall.Timeout),
	}
	if c.annotator.Enabled() {
		opts = append(opts, engine.WithAnnotator(c.annotator))
	}

	if cfg.ReportingEnabled() {
		client, err := abuseipdb.New(abuseipdb.Config{
			Endpoint:          cfg.AbuseIPDB.Endpoint,
			APIKey:            cfg.AbuseIPDB.APIKey,
			RequestsPerSecond: cfg.AbuseIPDB.RequestsPerSecond,
			Burst:             cfg.AbuseIPDB.Burst,
			Timeout:           cfg.AbuseIPDB.Timeout,
		})
		if err != nil {
			return nil, err
		}
		gate := report.NewGate(c.store, client, report.GateConfig{
			Enabled:     true,
			Category:    cfg.AbuseIPDB.Category,
			MinInterval: cfg.AbuseIPDB.MinReportInterval,
			Templates:   cfg.AbuseIPDB.Templates,
		})
		c.dispatcher = report.NewDispatcher(gate, cfg.Reports.Workers, cfg.Reports.QueueSize)
		opts = append(opts, engine.WithReportDispatcher(c.dispatcher))
	} else if cfg.AbuseIPDB.Enabled {
		log.Warn("AbuseIPDB reporting enabled without an API key, reports disabled")
	}

	c.classifier = classifier.New(cfg.Rules)
	c.engine = engine.New(cfg.EffectivePolicy(), c.backend, c.store, opts...)
	return c, nil
}

func openDatabase(dbCfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}
	return db, nil
}

func (c *components) close() {
	c.annotator.Close()
	if c.db == nil {
		return
	}
	if sqlDB, err := c.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Run starts every configured source and worker and blocks until ctx is
// cancelled or a worker fails.
func Run(ctx context.Context, cfg config.Config) error {
	c, err := buildComponents(cfg, nil)
	if err != nil {
		return err
	}
	defer c.close()
	return c.run(ctx)
}

func (c *components) run(ctx context.Context) error {
	if err := c.engine.InitializeFromStore(ctx); err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	if c.dispatcher != nil {
		group.Go(func() error {
			c.dispatcher.Run(ctx)
			return nil
		})
	}

	group.Go(func() error {
		maintenance.RunExpirySweeper(ctx, c.engine, config.CalculateBetweenTime(c.cfg.Sweeper.Timer))
		return nil
	})

	for _, lf := range c.cfg.LogFiles {
		tailer := logfile.NewTailer(lf, c.classifier, c.engine)
		group.Go(func() error {
			return tailer.Run(ctx)
		})
	}

	if c.cfg.EventLog.Enabled {
		client, err := support.GetRedisClient(ctx, c.cfg.EventLog.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to get redis client: %w", err)
		}
		defer func() {
			if err := support.CloseRedisClient(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()
		monitor := eventlog.NewMonitor(c.cfg, c.engine)
		group.Go(func() error {
			return eventlog.Subscribe(ctx, client, c.cfg.EventLog.Channel, monitor)
		})

		heartbeat := runtime.NewHeartbeat(client, version.Get().BuildVersion, func() (int, int) {
			return len(c.engine.ListBanned()), len(c.engine.ListTracked())
		})
		group.Go(func() error {
			heartbeat.Run(ctx)
			return nil
		})
	}

	if c.cfg.API.Enabled {
		issuer, err := auth.NewIssuer(c.cfg.API.JWTSecret, c.cfg.API.TokenTTL)
		if err != nil {
			return err
		}
		api := server.New(c.engine, c.store, issuer, c.cfg.API.PasswordHash)
		group.Go(func() error {
			return api.Serve(ctx, c.cfg.API)
		})
	}

	c.logStartup(ctx)

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("failguard stopped")
	return err
}

func (c *components) logStartup(ctx context.Context) {
	if stats, err := c.store.GetStatistics(ctx); err == nil {
		log.Info("ban history", "total", stats.Total, "active", stats.Active, "today", stats.Today, "this_week", stats.ThisWeek)
	} else {
		log.Warn("failed to load ban statistics", "error", err)
	}
	if blocked, err := c.backend.ListBlocked(ctx); err == nil {
		log.Info("firewall state", "backend", c.backend.Name(), "blocked", len(blocked))
	} else {
		log.Warn("failed to list firewall blocks", "backend", c.backend.Name(), "error", err)
	}

	log.Info("failguard started",
		"version", version.Get().BuildVersion,
		"rules", c.classifier.Len(),
		"log_files", len(c.cfg.LogFiles),
		"event_log", c.cfg.EventLog.Enabled,
		"firewall", c.backend.Name(),
		"database", c.cfg.Database.Driver,
		"reporting", c.dispatcher != nil,
		"api", c.cfg.API.Enabled,
		"active_bans", len(c.engine.ListBanned()),
	)
	for name, limit := range thresholdSummary(c.cfg) {
		log.Debug("rule threshold", "rule", name, "max_failures", limit)
	}
}

func thresholdSummary(cfg config.Config) map[string]int {
	policy := cfg.EffectivePolicy()
	out := make(map[string]int, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		if rule.Enabled {
			out[rule.Name] = policy.MaxFailuresFor(rule.Name)
		}
	}
	return out
}
