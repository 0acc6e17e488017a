package config

import (
	"strings"
	"testing"
)

func TestEnsureDSNFromParts(t *testing.T) {
	t.Parallel()

	cfg := DBConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "market",
		Password: "p@ss word",
		Name:     "marketplace",
		SSLMode:  "disable",
	}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("ensureDSN: %v", err)
	}
	if !strings.HasPrefix(cfg.DSN, "postgres://market:") {
		t.Fatalf("unexpected dsn: %s", cfg.DSN)
	}
	if !strings.Contains(cfg.DSN, "p%40ss+word") {
		t.Fatalf("password not escaped: %s", cfg.DSN)
	}
}

func TestEnsureDSNPrefersExplicit(t *testing.T) {
	t.Parallel()

	cfg := DBConfig{DSN: "postgres://u:p@db/market"}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("ensureDSN: %v", err)
	}
	if cfg.DSN != "postgres://u:p@db/market" {
		t.Fatalf("explicit dsn overwritten: %s", cfg.DSN)
	}
}

func TestEnsureDSNMissingParts(t *testing.T) {
	t.Parallel()

	cfg := DBConfig{Host: "localhost"}
	if err := cfg.ensureDSN(); err == nil {
		t.Fatal("expected error for missing user/name")
	}
}
