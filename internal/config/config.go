package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"fuelsync/backend/internal/settlement"
)

type Config struct {
	Port                  string `env:"PORT" envDefault:"8080"`
	AllowedOrigin         string `env:"ALLOWED_ORIGIN" envDefault:"http://127.0.0.1:3000"`
	DatabaseURL           string `env:"DATABASE_URL"`
	RedisAddr             string `env:"REDIS_ADDR"`
	RedisPassword         string `env:"REDIS_PASSWORD"`
	RedisDB               int    `env:"REDIS_DB" envDefault:"0"`
	DefaultStationID      string `env:"DEFAULT_STATION_ID" envDefault:"main-station"`
	ReportCacheTTLSeconds int    `env:"REPORT_CACHE_TTL_SECONDS" envDefault:"60"`
	AuthSecret            string `env:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"480"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"development"`

	MonetaryTolerance      string `env:"MONETARY_TOLERANCE" envDefault:"0.01"`
	VarianceReviewPct      string `env:"VARIANCE_REVIEW_PCT" envDefault:"2"`
	VarianceInvestigatePct string `env:"VARIANCE_INVESTIGATE_PCT" envDefault:"5"`
	CreditLimitHardStop    bool   `env:"CREDIT_LIMIT_HARD_STOP" envDefault:"false"`
	SettlementPolicyFile   string `env:"SETTLEMENT_POLICY_FILE"`
}

// policyFile overrides individual policy values. Absent keys keep the env value.
type policyFile struct {
	MonetaryTolerance       *float64 `yaml:"monetary_tolerance"`
	ReviewThresholdPct      *float64 `yaml:"review_threshold_pct"`
	InvestigateThresholdPct *float64 `yaml:"investigate_threshold_pct"`
	CurrentMaxDays          *int     `yaml:"current_max_days"`
	OverdueMaxDays          *int     `yaml:"overdue_max_days"`
	CreditLimitHardStop     *bool    `yaml:"credit_limit_hard_stop"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.ReportCacheTTLSeconds < 1 {
		cfg.ReportCacheTTLSeconds = 60
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Policy builds the settlement policy from env values, then applies the
// optional YAML override file. It also returns the effective hard-stop flag.
func (c Config) Policy() (settlement.Policy, bool, error) {
	policy := settlement.DefaultPolicy()
	hardStop := c.CreditLimitHardStop

	var err error
	if policy.MonetaryTolerance, err = parseDecimal("MONETARY_TOLERANCE", c.MonetaryTolerance, policy.MonetaryTolerance); err != nil {
		return settlement.Policy{}, false, err
	}
	if policy.ReviewThresholdPct, err = parseDecimal("VARIANCE_REVIEW_PCT", c.VarianceReviewPct, policy.ReviewThresholdPct); err != nil {
		return settlement.Policy{}, false, err
	}
	if policy.InvestigateThresholdPct, err = parseDecimal("VARIANCE_INVESTIGATE_PCT", c.VarianceInvestigatePct, policy.InvestigateThresholdPct); err != nil {
		return settlement.Policy{}, false, err
	}

	if path := strings.TrimSpace(c.SettlementPolicyFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return settlement.Policy{}, false, fmt.Errorf("read settlement policy file: %w", err)
		}
		var file policyFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return settlement.Policy{}, false, fmt.Errorf("parse settlement policy file: %w", err)
		}
		if file.MonetaryTolerance != nil {
			policy.MonetaryTolerance = decimal.NewFromFloat(*file.MonetaryTolerance)
		}
		if file.ReviewThresholdPct != nil {
			policy.ReviewThresholdPct = decimal.NewFromFloat(*file.ReviewThresholdPct)
		}
		if file.InvestigateThresholdPct != nil {
			policy.InvestigateThresholdPct = decimal.NewFromFloat(*file.InvestigateThresholdPct)
		}
		if file.CurrentMaxDays != nil {
			policy.CurrentMaxDays = *file.CurrentMaxDays
		}
		if file.OverdueMaxDays != nil {
			policy.OverdueMaxDays = *file.OverdueMaxDays
		}
		if file.CreditLimitHardStop != nil {
			hardStop = *file.CreditLimitHardStop
		}
	}

	if err := policy.Validate(); err != nil {
		return settlement.Policy{}, false, fmt.Errorf("settlement policy: %w", err)
	}
	return policy, hardStop, nil
}

func parseDecimal(key string, raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal: %w", key, err)
	}
	return v, nil
}
