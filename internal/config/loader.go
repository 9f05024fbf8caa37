package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HOUSED_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HOUSED_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Settlement ──
	for _, kind := range validGameKinds {
		setMapInt(&cfg.Settlement.FeeBps, kind, "HOUSED_SETTLEMENT_FEE_BPS_"+strings.ToUpper(kind))
	}
	setUint64(&cfg.Settlement.MinBet, "HOUSED_SETTLEMENT_MIN_BET")
	setUint64(&cfg.Settlement.MaxBet, "HOUSED_SETTLEMENT_MAX_BET")
	setDuration(&cfg.Settlement.LockTTL, "HOUSED_SETTLEMENT_LOCK_TTL")

	// ── Fairness ──
	setDuration(&cfg.Fairness.RevealRetention, "HOUSED_FAIRNESS_REVEAL_RETENTION")
	setDuration(&cfg.Fairness.PurgeInterval, "HOUSED_FAIRNESS_PURGE_INTERVAL")
	setStr(&cfg.Fairness.VaultPassphrase, "HOUSED_FAIRNESS_VAULT_PASSPHRASE")
	setStr(&cfg.Fairness.VaultSalt, "HOUSED_FAIRNESS_VAULT_SALT")

	// ── Dealing ──
	setStr(&cfg.Dealing.Protocol, "HOUSED_DEALING_PROTOCOL")
	setDuration(&cfg.Dealing.Timeout, "HOUSED_DEALING_TIMEOUT")
	setDuration(&cfg.Dealing.FreshnessWindow, "HOUSED_DEALING_FRESHNESS_WINDOW")
	setInt(&cfg.Dealing.MaxAttempts, "HOUSED_DEALING_MAX_ATTEMPTS")
	setDuration(&cfg.Dealing.BaseBackoff, "HOUSED_DEALING_BASE_BACKOFF")
	setDuration(&cfg.Dealing.MaxBackoff, "HOUSED_DEALING_MAX_BACKOFF")
	setDuration(&cfg.Dealing.LockTTL, "HOUSED_DEALING_LOCK_TTL")
	setStr(&cfg.Dealing.LocalMasterKey, "HOUSED_DEALING_LOCAL_MASTER_KEY")
	setStr(&cfg.Dealing.SignerKey, "HOUSED_DEALING_SIGNER_KEY")
	setStr(&cfg.Dealing.EncryptedKeyPath, "HOUSED_DEALING_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Dealing.KeyPassword, "HOUSED_DEALING_KEY_PASSWORD")

	// ── MPC ──
	setStr(&cfg.MPC.BaseURL, "HOUSED_MPC_BASE_URL")
	setStr(&cfg.MPC.APIKey, "HOUSED_MPC_API_KEY")
	setStr(&cfg.MPC.APISecret, "HOUSED_MPC_API_SECRET")
	setStr(&cfg.MPC.ClusterPublicKey, "HOUSED_MPC_CLUSTER_PUBLIC_KEY")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "HOUSED_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "HOUSED_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "HOUSED_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "HOUSED_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "HOUSED_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "HOUSED_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "HOUSED_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "HOUSED_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "HOUSED_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "HOUSED_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "HOUSED_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HOUSED_REDIS_ADDR")
	setStr(&cfg.Redis.MasterName, "HOUSED_REDIS_MASTER_NAME")
	setStr(&cfg.Redis.Password, "HOUSED_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HOUSED_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HOUSED_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HOUSED_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HOUSED_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "HOUSED_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HOUSED_S3_REGION")
	setStr(&cfg.S3.Bucket, "HOUSED_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HOUSED_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HOUSED_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HOUSED_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HOUSED_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "HOUSED_S3_PREFIX")
	setDuration(&cfg.S3.AuditExportInterval, "HOUSED_S3_AUDIT_EXPORT_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HOUSED_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HOUSED_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "HOUSED_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "HOUSED_SERVER_API_KEY")
	setInt(&cfg.Server.VerifyRateLimit, "HOUSED_SERVER_VERIFY_RATE_LIMIT")
	setDuration(&cfg.Server.VerifyRateWindow, "HOUSED_SERVER_VERIFY_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HOUSED_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HOUSED_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HOUSED_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HOUSED_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HOUSED_MODE")
	setStr(&cfg.LogLevel, "HOUSED_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setMapInt(dst *map[string]int, field, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if *dst == nil {
				*dst = make(map[string]int)
			}
			(*dst)[field] = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
