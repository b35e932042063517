package main

import (
	"testing"

	"go.uber.org/zap"

	"fuelsync/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := map[string]config.Config{
		"short secret":    {AuthSecret: "short", AllowedOrigin: "https://pumps.example"},
		"wildcard origin": {AuthSecret: "0123456789abcdef0123456789abcdef", AllowedOrigin: "*"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if err := validateSecurityConfig(cfg); err == nil {
				t.Fatalf("expected weak security config to be rejected")
			}
		})
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AllowedOrigin: "https://pumps.example"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestNewLoggerSelectsProductionEncoder(t *testing.T) {
	logger, err := newLogger("Production")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected production logger to drop debug entries")
	}

	dev, err := newLogger("")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if !dev.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected development logger to keep debug entries")
	}
}
