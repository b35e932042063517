package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "DEFAULT_STATION_ID")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "main-station", cfg.DefaultStationID)
	assert.Equal(t, 60, cfg.ReportCacheTTLSeconds)
}

func TestPolicyFromEnv(t *testing.T) {
	unsetEnv(t, "SETTLEMENT_POLICY_FILE", "MONETARY_TOLERANCE", "VARIANCE_INVESTIGATE_PCT")
	t.Setenv("VARIANCE_REVIEW_PCT", "1.5")
	t.Setenv("CREDIT_LIMIT_HARD_STOP", "true")

	cfg, err := Load()
	require.NoError(t, err)
	policy, hardStop, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, "1.5", policy.ReviewThresholdPct.String())
	assert.Equal(t, "0.01", policy.MonetaryTolerance.String())
	assert.True(t, hardStop)
}

func TestPolicyFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("review_threshold_pct: 3\ninvestigate_threshold_pct: 10\noverdue_max_days: 90\n"), 0o600))

	t.Setenv("SETTLEMENT_POLICY_FILE", path)
	t.Setenv("VARIANCE_REVIEW_PCT", "1")
	t.Setenv("CREDIT_LIMIT_HARD_STOP", "false")

	cfg, err := Load()
	require.NoError(t, err)
	policy, hardStop, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, "3", policy.ReviewThresholdPct.String())
	assert.Equal(t, "10", policy.InvestigateThresholdPct.String())
	assert.Equal(t, 30, policy.CurrentMaxDays)
	assert.Equal(t, 90, policy.OverdueMaxDays)
	assert.False(t, hardStop)
}

func TestPolicyRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("SETTLEMENT_POLICY_FILE", "")
	t.Setenv("VARIANCE_REVIEW_PCT", "8")
	t.Setenv("VARIANCE_INVESTIGATE_PCT", "5")

	cfg, err := Load()
	require.NoError(t, err)
	_, _, err = cfg.Policy()
	assert.Error(t, err)
}

func TestPolicyRejectsMalformedDecimal(t *testing.T) {
	t.Setenv("SETTLEMENT_POLICY_FILE", "")
	t.Setenv("MONETARY_TOLERANCE", "one cent")

	cfg, err := Load()
	require.NoError(t, err)
	_, _, err = cfg.Policy()
	assert.ErrorContains(t, err, "MONETARY_TOLERANCE")
}
