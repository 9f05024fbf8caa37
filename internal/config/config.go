// Package config defines the top-level configuration for the housed
// wagering service and provides validation helpers.
package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/housefun/internal/dealing"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HOUSED_* environment variables.
type Config struct {
	Settlement SettlementConfig `toml:"settlement"`
	Fairness   FairnessConfig   `toml:"fairness"`
	Dealing    DealingConfig    `toml:"dealing"`
	MPC        MPCConfig        `toml:"mpc"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// SettlementConfig holds house fee and bet limits. Amounts are in the
// smallest currency unit.
type SettlementConfig struct {
	// FeeBps maps a game kind ("flip", "fight", "derby", "poker") to its
	// house fee in basis points.
	FeeBps  map[string]int `toml:"fee_bps"`
	MinBet  uint64         `toml:"min_bet"`
	MaxBet  uint64         `toml:"max_bet"`
	LockTTL duration       `toml:"lock_ttl"`
}

// FairnessConfig holds seed-pair lifecycle parameters.
type FairnessConfig struct {
	// RevealRetention is how long a rotated server seed stays retrievable.
	RevealRetention duration `toml:"reveal_retention"`
	// PurgeInterval is how often expired reveals are deleted.
	PurgeInterval duration `toml:"purge_interval"`
	// VaultPassphrase encrypts server seeds at rest.
	VaultPassphrase string `toml:"vault_passphrase"`
	VaultSalt       string `toml:"vault_salt"`
}

// DealingConfig selects and tunes the dealing backend.
type DealingConfig struct {
	// Protocol is "legacy" (in-process dealer) or "mpc" (external cluster).
	Protocol        string   `toml:"protocol"`
	Timeout         duration `toml:"timeout"`
	FreshnessWindow duration `toml:"freshness_window"`
	MaxAttempts     int      `toml:"max_attempts"`
	BaseBackoff     duration `toml:"base_backoff"`
	MaxBackoff      duration `toml:"max_backoff"`
	LockTTL         duration `toml:"lock_ttl"`
	// LocalMasterKey keys the legacy dealer's card encryption.
	LocalMasterKey string `toml:"local_master_key"`
	// SignerKey / EncryptedKeyPath / KeyPassword resolve the legacy dealer's
	// secp256k1 proof-signing key.
	SignerKey        string `toml:"signer_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// MPCConfig holds the external MPC cluster endpoint and credentials.
type MPCConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	// ClusterPublicKey verifies proof signatures when set (hex secp256k1).
	ClusterPublicKey string `toml:"cluster_public_key"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. A comma-separated Addr
// selects cluster mode; MasterName selects sentinel failover.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	MasterName string `toml:"master_name"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// Prefix is prepended to every archive key, e.g. "prod/".
	Prefix string `toml:"prefix"`
	// AuditExportInterval is how often the audit log is exported; zero
	// disables the export.
	AuditExportInterval duration `toml:"audit_export_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects every route except /api/verify; empty disables auth.
	APIKey string `toml:"api_key"`
	// VerifyRateLimit is the per-IP request budget for /api/verify within
	// VerifyRateWindow.
	VerifyRateLimit  int      `toml:"verify_rate_limit"`
	VerifyRateWindow duration `toml:"verify_rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Settlement: SettlementConfig{
			FeeBps: map[string]int{
				"flip":  100,
				"fight": 100,
				"derby": 100,
				"poker": 50,
			},
			MinBet:  1_000_000,
			MaxBet:  100_000_000_000,
			LockTTL: duration{30 * time.Second},
		},
		Fairness: FairnessConfig{
			RevealRetention: duration{time.Hour},
			PurgeInterval:   duration{10 * time.Minute},
		},
		Dealing: DealingConfig{
			Protocol:        "legacy",
			Timeout:         duration{45 * time.Second},
			FreshnessWindow: duration{5 * time.Minute},
			MaxAttempts:     3,
			BaseBackoff:     duration{500 * time.Millisecond},
			MaxBackoff:      duration{5 * time.Second},
			LockTTL:         duration{3 * time.Minute},
		},
		Supabase: SupabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:            "http://localhost:9000",
			Region:              "us-east-1",
			Bucket:              "housefun-hands",
			UseSSL:              false,
			ForcePathStyle:      true,
			AuditExportInterval: duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
			VerifyRateLimit:  60,
			VerifyRateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"integrity_violation", "game_settled", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var (
	validModes     = []string{"server", "worker", "full"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validGameKinds = []string{"flip", "fight", "derby", "poker"}
)

// problems accumulates validation failures so one run reports all of them.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

func validPort(n int) bool { return n > 0 && n <= 65535 }

// Validate reports every invalid or missing value at once.
func (c *Config) Validate() error {
	var p problems
	p.check(slices.Contains(validModes, strings.ToLower(c.Mode)),
		"unknown mode %q (valid: %s)", c.Mode, strings.Join(validModes, ", "))
	p.check(slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)),
		"unknown log_level %q (valid: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))

	c.Settlement.validate(&p)
	p.check(c.Fairness.RevealRetention.Duration > 0, "fairness: reveal_retention must be > 0")
	p.check(c.Fairness.VaultPassphrase != "" || c.Mode == "worker",
		"fairness: vault_passphrase must be set so server seeds are encrypted at rest")
	c.validateDealing(&p)
	c.Supabase.validate(&p)

	p.check(c.Redis.Addr != "", "redis: addr must not be empty")
	p.check(c.Redis.PoolSize >= 1, "redis: pool_size must be >= 1")

	// The archive is optional; an empty endpoint means AWS itself.
	if c.S3.AccessKey != "" {
		p.check(c.S3.Bucket != "", "s3: bucket must not be empty")
		p.check(c.S3.Region != "", "s3: region must not be empty")
		p.check(c.S3.SecretKey != "", "s3: secret_key is required with access_key")
	}
	p.check(c.S3.AuditExportInterval.Duration >= 0, "s3: audit_export_interval must not be negative")

	if c.Server.Enabled {
		p.check(validPort(c.Server.Port), "server: port must be 1-65535, got %d", c.Server.Port)
		p.check(c.Server.VerifyRateLimit >= 1, "server: verify_rate_limit must be >= 1")
		p.check(c.Server.VerifyRateWindow.Duration > 0, "server: verify_rate_window must be > 0")
	}

	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("config: %d problem(s):\n  - %s", len(p), strings.Join(p, "\n  - "))
}

func (s SettlementConfig) validate(p *problems) {
	for _, kind := range slices.Sorted(maps.Keys(s.FeeBps)) {
		bps := s.FeeBps[kind]
		p.check(slices.Contains(validGameKinds, kind), "settlement: fee_bps has unknown game kind %q", kind)
		p.check(bps >= 0 && bps <= 10_000, "settlement: fee_bps.%s must be 0-10000, got %d", kind, bps)
	}
	p.check(s.MinBet > 0, "settlement: min_bet must be > 0")
	p.check(s.MaxBet >= s.MinBet, "settlement: max_bet must not be below min_bet")
	p.check(s.LockTTL.Duration > 0, "settlement: lock_ttl must be > 0")
}

func (c *Config) validateDealing(p *problems) {
	d := c.Dealing
	switch strings.ToLower(d.Protocol) {
	case "legacy":
		p.check(d.LocalMasterKey != "", "dealing: local_master_key is required for protocol legacy")
		p.check(d.EncryptedKeyPath == "" || d.KeyPassword != "",
			"dealing: key_password is required when encrypted_key_path is set")
	case "mpc":
		p.check(c.MPC.BaseURL != "", "mpc: base_url is required for protocol mpc")
		p.check((c.MPC.APIKey == "") == (c.MPC.APISecret == ""), "mpc: api_key and api_secret must be set together")
	default:
		p.check(false, "dealing: unknown protocol %q (valid: legacy, mpc)", d.Protocol)
	}
	t := d.Timeout.Duration
	p.check(t >= 30*time.Second && t <= 60*time.Second, "dealing: timeout must be 30s-60s, got %s", t)
	p.check(d.FreshnessWindow.Duration > 0, "dealing: freshness_window must be > 0")
	p.check(d.MaxAttempts >= 1, "dealing: max_attempts must be >= 1")
	p.check(d.MaxBackoff.Duration >= d.BaseBackoff.Duration, "dealing: max_backoff must not be below base_backoff")
	worst := d.Coordinator().WorstCase()
	p.check(d.LockTTL.Duration > worst, "dealing: lock_ttl %s must exceed worst-case backend time %s", d.LockTTL.Duration, worst)
}

// Coordinator maps the dealing section onto the coordinator's retry bounds.
func (d DealingConfig) Coordinator() dealing.CoordinatorConfig {
	return dealing.CoordinatorConfig{
		Timeout:         d.Timeout.Duration,
		FreshnessWindow: d.FreshnessWindow.Duration,
		MaxAttempts:     d.MaxAttempts,
		BaseBackoff:     d.BaseBackoff.Duration,
		MaxBackoff:      d.MaxBackoff.Duration,
	}
}

func (s SupabaseConfig) validate(p *problems) {
	if strings.TrimSpace(s.DSN) == "" {
		p.check(s.Host != "", "supabase: host must not be empty (or set supabase.dsn)")
		p.check(validPort(s.Port), "supabase: port must be 1-65535, got %d", s.Port)
		p.check(s.Database != "", "supabase: database must not be empty")
	}
	p.check(s.PoolMaxConns >= 1, "supabase: pool_max_conns must be >= 1")
	p.check(s.PoolMinConns >= 0, "supabase: pool_min_conns must be >= 0")
	p.check(s.PoolMinConns <= s.PoolMaxConns, "supabase: pool_min_conns must not exceed pool_max_conns")
}

// FeeBpsFor returns the configured fee for a game kind, or def when the
// kind has no entry.
func (s SettlementConfig) FeeBpsFor(kind string, def uint32) uint32 {
	if bps, ok := s.FeeBps[kind]; ok && bps >= 0 {
		return uint32(bps)
	}
	return def
}
