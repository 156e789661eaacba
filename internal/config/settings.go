package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"failguard/internal/domain"
	"failguard/internal/support"
)

const (
	DefaultSettingsPath = "data/settings.yaml"

	DefaultMaxFailures       = 3
	DefaultBanDuration       = 5 * time.Hour
	DefaultReportInterval    = 24 * time.Hour
	DefaultReportCategory    = 18
	DefaultAbuseIPDBEndpoint = "https://api.abuseipdb.com/api/v2/report"
	DefaultDateLayout        = "060102"
	DefaultDuplicateWindow   = 5 * time.Second
	DefaultDuplicateHorizon  = 10 * time.Minute
	DefaultEventChannel      = "failguard:events"
)

var DefaultEventIDs = []int{4625, 4771, 18456}

type Config struct {
	Policy    PolicyConfig        `yaml:"policy"`
	Rules     []domain.FilterRule `yaml:"rules"`
	LogFiles  []LogFileConfig     `yaml:"log_files"`
	EventLog  EventLogConfig      `yaml:"event_log"`
	AbuseIPDB AbuseIPDBConfig     `yaml:"abuseipdb"`
	Reports   ReportsConfig       `yaml:"reports"`
	Firewall  FirewallConfig      `yaml:"firewall"`
	Database  DatabaseConfig      `yaml:"database"`
	API       APIConfig           `yaml:"api"`
	Logging   LoggingConfig       `yaml:"logging"`
	GeoLite   GeoLiteConfig       `yaml:"geolite"`
	Sweeper   SweeperConfig       `yaml:"sweeper"`
}

type PolicyConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	BanDuration time.Duration `yaml:"ban_duration"`
	Ignore      []string      `yaml:"ignore"`
}

type LogFileConfig struct {
	// Path may contain {date}, replaced with the current date in DateLayout.
	Path          string `yaml:"path"`
	DateLayout    string `yaml:"date_layout"`
	PollTimer     Timer  `yaml:"poll_timer"`
	ReadFromStart bool   `yaml:"read_from_start"`
}

type EventLogConfig struct {
	Enabled          bool                `yaml:"enabled"`
	RedisURL         string              `yaml:"redis_url"`
	Channel          string              `yaml:"channel"`
	EventIDs         []int               `yaml:"event_ids"`
	DuplicateWindow  time.Duration       `yaml:"duplicate_window"`
	DuplicateHorizon time.Duration       `yaml:"duplicate_horizon"`
	Filters          []domain.FilterRule `yaml:"filters"`
}

type AbuseIPDBConfig struct {
	Enabled           bool              `yaml:"enabled"`
	APIKey            string            `yaml:"api_key"`
	Endpoint          string            `yaml:"endpoint"`
	Category          int               `yaml:"category"`
	MinReportInterval time.Duration     `yaml:"min_report_interval"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Burst             int               `yaml:"burst"`
	Timeout           time.Duration     `yaml:"timeout"`
	Templates         map[string]string `yaml:"templates"`
}

type ReportsConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type FirewallConfig struct {
	// Backend is one of auto, iptables, pf, netsh or memory.
	Backend    string        `yaml:"backend"`
	Chain      string        `yaml:"chain"`
	Table      string        `yaml:"table"`
	RulePrefix string        `yaml:"rule_prefix"`
	UseSudo    bool          `yaml:"use_sudo"`
	Timeout    time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	// Driver is sqlite or postgres.
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	DSN             string        `yaml:"dsn"`
	LogQueries      bool          `yaml:"log_queries"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

type APIConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Listen         string        `yaml:"listen"`
	PasswordHash   string        `yaml:"password_hash"`
	JWTSecret      string        `yaml:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	MaxConnections int           `yaml:"max_connections"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

type GeoLiteConfig struct {
	CountryDB string `yaml:"country_db"`
	ASNDB     string `yaml:"asn_db"`
}

type SweeperConfig struct {
	Timer Timer `yaml:"timer"`
}

//go:embed default_settings.yaml
var defaultSettings []byte

var ErrInvalidConfig = errors.New("config: invalid settings")

// Load reads the settings file at path, writing the embedded defaults there
// first when it does not exist. Environment overrides are applied and the
// result validated.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultSettingsPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}

		log.Warn("Settings file not found, creating with default configuration", "path", path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return Config{}, fmt.Errorf("config: create settings directory: %w", err)
		}
		if err := os.WriteFile(path, defaultSettings, 0o644); err != nil {
			return Config{}, fmt.Errorf("config: write default settings: %w", err)
		}
		data = defaultSettings
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	log.Debug("Settings file loaded", "path", path, "rules", len(cfg.Rules))
	return cfg, nil
}

// Parse decodes YAML settings, applies environment overrides and validates.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode settings: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the embedded default configuration.
func Default() Config {
	cfg, err := Parse(defaultSettings)
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	cfg.Database.Driver = support.GetEnv("FAILGUARD_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = support.GetEnv("FAILGUARD_DB_DSN", cfg.Database.DSN)
	cfg.EventLog.RedisURL = support.GetEnv("FAILGUARD_REDIS_URL", cfg.EventLog.RedisURL)
	cfg.AbuseIPDB.APIKey = support.GetEnv("ABUSEIPDB_API_KEY", cfg.AbuseIPDB.APIKey)
	cfg.API.JWTSecret = support.GetEnv("FAILGUARD_JWT_SECRET", cfg.API.JWTSecret)
	cfg.API.PasswordHash = support.GetEnv("FAILGUARD_API_PASSWORD_HASH", cfg.API.PasswordHash)
	cfg.Logging.Level = support.GetEnv("FAILGUARD_LOG_LEVEL", cfg.Logging.Level)
}

// Validate fills defaults for omitted values and rejects settings the agent
// cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Policy.MaxFailures <= 0 {
		c.Policy.MaxFailures = DefaultMaxFailures
	}
	if c.Policy.BanDuration < 0 {
		errs = append(errs, fmt.Errorf("%w: policy.ban_duration must not be negative", ErrInvalidConfig))
	} else if c.Policy.BanDuration == 0 {
		c.Policy.BanDuration = DefaultBanDuration
	}
	if _, err := support.ParseIgnoreList(c.Policy.Ignore); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}

	seen := make(map[string]struct{}, len(c.Rules)+len(c.EventLog.Filters))
	checkRule := func(kind string, rule domain.FilterRule) {
		if strings.TrimSpace(rule.Name) == "" {
			errs = append(errs, fmt.Errorf("%w: %s without a name", ErrInvalidConfig, kind))
			return
		}
		if _, dup := seen[rule.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate rule name %q", ErrInvalidConfig, rule.Name))
		}
		seen[rule.Name] = struct{}{}
		if rule.MaxFailures != nil && *rule.MaxFailures <= 0 {
			errs = append(errs, fmt.Errorf("%w: rule %q max_failures must be positive", ErrInvalidConfig, rule.Name))
		}
		if rule.BanDuration != nil && *rule.BanDuration < 0 {
			errs = append(errs, fmt.Errorf("%w: rule %q ban_duration must not be negative", ErrInvalidConfig, rule.Name))
		}
	}
	for _, rule := range c.Rules {
		checkRule("rule", rule)
	}
	for _, filter := range c.EventLog.Filters {
		checkRule("event filter", filter)
	}

	for i := range c.LogFiles {
		lf := &c.LogFiles[i]
		if lf.Path == "" {
			errs = append(errs, fmt.Errorf("%w: log_files[%d] has no path", ErrInvalidConfig, i))
		}
		if lf.DateLayout == "" {
			lf.DateLayout = DefaultDateLayout
		}
		if lf.PollTimer.IsZero() {
			lf.PollTimer = Timer{Seconds: 10}
		}
	}

	if len(c.EventLog.EventIDs) == 0 {
		c.EventLog.EventIDs = append([]int(nil), DefaultEventIDs...)
	}
	if c.EventLog.Channel == "" {
		c.EventLog.Channel = DefaultEventChannel
	}
	if c.EventLog.DuplicateWindow <= 0 {
		c.EventLog.DuplicateWindow = DefaultDuplicateWindow
	}
	if c.EventLog.DuplicateHorizon <= 0 {
		c.EventLog.DuplicateHorizon = DefaultDuplicateHorizon
	}

	if c.AbuseIPDB.Endpoint == "" {
		c.AbuseIPDB.Endpoint = DefaultAbuseIPDBEndpoint
	}
	if c.AbuseIPDB.Category <= 0 {
		c.AbuseIPDB.Category = DefaultReportCategory
	}
	if c.AbuseIPDB.MinReportInterval <= 0 {
		c.AbuseIPDB.MinReportInterval = DefaultReportInterval
	}
	if c.AbuseIPDB.RequestsPerSecond <= 0 {
		c.AbuseIPDB.RequestsPerSecond = 1
	}
	if c.AbuseIPDB.Burst <= 0 {
		c.AbuseIPDB.Burst = 5
	}
	if c.AbuseIPDB.Timeout <= 0 {
		c.AbuseIPDB.Timeout = 30 * time.Second
	}

	if c.Reports.Workers <= 0 {
		c.Reports.Workers = 2
	}
	if c.Reports.QueueSize <= 0 {
		c.Reports.QueueSize = 256
	}

	switch c.Firewall.Backend {
	case "":
		c.Firewall.Backend = "auto"
	case "auto", "iptables", "pf", "netsh", "memory":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown firewall backend %q", ErrInvalidConfig, c.Firewall.Backend))
	}
	if c.Firewall.Timeout <= 0 {
		c.Firewall.Timeout = 10 * time.Second
	}

	switch c.Database.Driver {
	case "":
		c.Database.Driver = "sqlite"
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver))
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "data/failguard.db"
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("%w: postgres driver requires database.dsn or FAILGUARD_DB_DSN", ErrInvalidConfig))
	}

	if c.API.Listen == "" {
		c.API.Listen = "127.0.0.1:8942"
	}
	if c.API.TokenTTL <= 0 {
		c.API.TokenTTL = 12 * time.Hour
	}
	if c.API.MaxConnections <= 0 {
		c.API.MaxConnections = 64
	}
	if c.API.Enabled && (c.API.JWTSecret == "" || c.API.PasswordHash == "") {
		errs = append(errs, fmt.Errorf("%w: api requires jwt_secret and password_hash", ErrInvalidConfig))
	}

	if c.Sweeper.Timer.IsZero() {
		c.Sweeper.Timer = Timer{Minutes: 1}
	}

	return errors.Join(errs...)
}

// ReportingEnabled is true when reports are switched on and a key is present.
func (c Config) ReportingEnabled() bool {
	return c.AbuseIPDB.Enabled && c.AbuseIPDB.APIKey != ""
}
