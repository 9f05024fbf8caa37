package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Fairness.VaultPassphrase = "vault"
	cfg.Dealing.LocalMasterKey = "master"
	return cfg
}

func TestDefaultsValidateWithSecrets(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, uint32(50), cfg.Settlement.FeeBpsFor("poker", 100))
	require.Equal(t, uint32(100), cfg.Settlement.FeeBpsFor("flip", 0))
	require.Equal(t, uint32(7), cfg.Settlement.FeeBpsFor("blackjack", 7))
	require.Equal(t, 45*time.Second, cfg.Dealing.Timeout.Duration)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Settlement.FeeBps["flip"] = 10_001
	cfg.Settlement.MaxBet = 1
	cfg.Dealing.Timeout = duration{10 * time.Second}
	cfg.Dealing.Protocol = "mpc"
	cfg.MPC.APIKey = "k"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		"fee_bps.flip must be 0-10000",
		"max_bet must not be below min_bet",
		"vault_passphrase must be set",
		"timeout must be 30s-60s",
		"mpc: base_url is required",
		"api_key and api_secret must be set together",
	} {
		require.Contains(t, err.Error(), want)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "housed.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "server"

[settlement]
min_bet = 5000000
[settlement.fee_bps]
derby = 250

[dealing]
protocol = "mpc"
timeout = "30s"

[mpc]
base_url = "https://mpc.example"
`), 0o600))

	t.Setenv("HOUSED_SETTLEMENT_FEE_BPS_POKER", "75")
	t.Setenv("HOUSED_DEALING_TIMEOUT", "50s")
	t.Setenv("HOUSED_MPC_API_KEY", "key")
	t.Setenv("HOUSED_MPC_API_SECRET", "secret")
	t.Setenv("HOUSED_FAIRNESS_VAULT_PASSPHRASE", "vault")
	t.Setenv("HOUSED_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "server", cfg.Mode)
	require.Equal(t, uint64(5_000_000), cfg.Settlement.MinBet)
	require.Equal(t, uint64(100_000_000_000), cfg.Settlement.MaxBet, "defaults survive partial files")
	require.Equal(t, 250, cfg.Settlement.FeeBps["derby"])
	require.Equal(t, 75, cfg.Settlement.FeeBps["poker"])
	require.Equal(t, 100, cfg.Settlement.FeeBps["flip"])
	require.Equal(t, 50*time.Second, cfg.Dealing.Timeout.Duration)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.MPC.APISecret = "s3cret"
	cfg.Supabase.DSN = "postgres://u:p@h/db"
	cfg.Server.APIKey = "api"

	out := RedactedConfig(&cfg)
	require.Equal(t, redacted, out.MPC.APISecret)
	require.Equal(t, redacted, out.Supabase.DSN)
	require.Equal(t, redacted, out.Server.APIKey)
	require.Equal(t, redacted, out.Fairness.VaultPassphrase)
	require.Equal(t, redacted, out.Dealing.LocalMasterKey)
	require.Empty(t, out.Redis.Password, "empty secrets stay empty")

	out.Settlement.FeeBps["flip"] = 1
	require.Equal(t, 100, cfg.Settlement.FeeBps["flip"])
	require.Equal(t, "s3cret", cfg.MPC.APISecret)
}

func TestValidateArchiveOnlyWhenConfigured(t *testing.T) {
	cfg := validConfig()
	cfg.S3.Endpoint = ""
	cfg.S3.Bucket = ""
	require.NoError(t, cfg.Validate(), "archive disabled without credentials")

	cfg.S3.AccessKey = "ak"
	err := cfg.Validate()
	require.ErrorContains(t, err, "s3: bucket must not be empty")
	require.ErrorContains(t, err, "s3: secret_key is required")
	require.ErrorContains(t, err, "config: 2 problem(s)")
}

func TestDealLockMustOutlastBackendRetries(t *testing.T) {
	cfg := validConfig()
	require.Equal(t, 136500*time.Millisecond, cfg.Dealing.Coordinator().WorstCase())
	require.Greater(t, cfg.Dealing.LockTTL.Duration, cfg.Dealing.Coordinator().WorstCase())

	cfg.Dealing.LockTTL = duration{2 * time.Minute}
	require.ErrorContains(t, cfg.Validate(), "dealing: lock_ttl 2m0s must exceed worst-case backend time 2m16.5s")

	cfg.Dealing.LockTTL = duration{3 * time.Minute}
	cfg.Dealing.MaxAttempts = 4
	require.ErrorContains(t, cfg.Validate(), "worst-case backend time 3m3.5s")
}
