package config

import (
	"fmt"
	"time"

	"github.com/gotify/configor"
)

// Configuration is the service configuration. Values come from config.yml
// when present, then from the environment.
type Configuration struct {
	App struct {
		ListenAddr string `default:":8080" env:"ELEVATE_LISTEN_ADDR"`
		GRPCAddr   string `default:":9090" env:"ELEVATE_GRPC_ADDR"`
		Version    string `default:"0.1.0" env:"ELEVATE_VERSION"`
		MaxBody    int64  `default:"1048576" env:"ELEVATE_MAX_BODY_BYTES"`
	}
	Database struct {
		DSN             string `default:"" env:"ELEVATE_PG_DSN"`
		MaxOpenConns    int    `default:"20" env:"ELEVATE_PG_MAX_OPEN_CONNS"`
		MaxIdleConns    int    `default:"10" env:"ELEVATE_PG_MAX_IDLE_CONNS"`
		ConnMaxLifetime string `default:"30m" env:"ELEVATE_PG_CONN_MAX_LIFETIME"`
		MigrateOnStart  *bool  `default:"false" env:"ELEVATE_PG_MIGRATE_ON_START"`
		MigrationsDir   string `default:"ops/migrations/sql" env:"ELEVATE_PG_MIGRATIONS_DIR"`
		SeedsDir        string `default:"ops/seeds" env:"ELEVATE_PG_SEEDS_DIR"`
	}
	Sweeper struct {
		Enabled       *bool  `default:"true" env:"ELEVATE_SWEEPER_ENABLED"`
		FirstRunDelay string `default:"15s" env:"ELEVATE_SWEEPER_FIRST_RUN_DELAY"`
		Interval      string `default:"1h" env:"ELEVATE_SWEEPER_INTERVAL"`
	}
	RateLimit struct {
		Burst     int `default:"50" env:"ELEVATE_RATE_BURST"`
		PerSecond int `default:"25" env:"ELEVATE_RATE_PER_SECOND"`
	}
	Auth struct {
		AllowDevTokens *bool  `default:"false" env:"ELEVATE_AUTH_DEV_TOKENS"`
		TokenTTL       string `default:"15m" env:"ELEVATE_AUTH_TOKEN_TTL"`
	}
	Log struct {
		Level string `default:"info" env:"ELEVATE_LOG_LEVEL"`
	}
}

func configFiles() []string {
	return []string{"config.yml"}
}

// Load reads configuration from the given files (config.yml by default).
// Missing files are skipped.
func Load(files ...string) (*Configuration, error) {
	if len(files) == 0 {
		files = configFiles()
	}
	conf := new(Configuration)
	if err := configor.New(&configor.Config{}).Load(conf, files...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if _, err := conf.SweepInterval(); err != nil {
		return nil, err
	}
	if _, err := conf.SweepFirstRunDelay(); err != nil {
		return nil, err
	}
	if _, err := conf.TokenTTL(); err != nil {
		return nil, err
	}
	if _, err := conf.ConnMaxLifetime(); err != nil {
		return nil, err
	}
	return conf, nil
}

// SweepInterval is the period between expiry sweeps.
func (c *Configuration) SweepInterval() (time.Duration, error) {
	return positiveDuration("sweeper.interval", c.Sweeper.Interval)
}

func (c *Configuration) SweepFirstRunDelay() (time.Duration, error) {
	return parseDuration("sweeper.first_run_delay", c.Sweeper.FirstRunDelay)
}

func (c *Configuration) TokenTTL() (time.Duration, error) {
	return positiveDuration("auth.token_ttl", c.Auth.TokenTTL)
}

func (c *Configuration) ConnMaxLifetime() (time.Duration, error) {
	return parseDuration("database.conn_max_lifetime", c.Database.ConnMaxLifetime)
}

func (c *Configuration) SweeperEnabled() bool { return boolValue(c.Sweeper.Enabled) }

func (c *Configuration) MigrateOnStart() bool { return boolValue(c.Database.MigrateOnStart) }

func (c *Configuration) DevTokensAllowed() bool { return boolValue(c.Auth.AllowDevTokens) }

func parseDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config %s: must not be negative", name)
	}
	return d, nil
}

func positiveDuration(name, raw string) (time.Duration, error) {
	d, err := parseDuration(name, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("config %s: must be greater than zero", name)
	}
	return d, nil
}

func boolValue(v *bool) bool {
	return v != nil && *v
}
