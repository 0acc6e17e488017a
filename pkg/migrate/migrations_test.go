package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE TABLE IF NOT EXISTS order_items",
		"CREATE TABLE IF NOT EXISTS payments",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_order ON payments (order_id)",
		"CHECK (quantity > 0)",
		"DROP TABLE IF EXISTS payments",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestVouchersMigrationEnforcesLimits(t *testing.T) {
	content := readMigration(t, "*_create_vouchers.sql")

	checks := []string{
		"CHECK (usage_limit IS NULL OR used_count <= usage_limit)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_vouchers_code ON vouchers (lower(code))",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCatalogMigrationProtectsStock(t *testing.T) {
	content := readMigration(t, "*_create_catalog_tables.sql")

	if !strings.Contains(content, "CHECK (stock_quantity >= 0)") {
		t.Error("stock_quantity check missing")
	}
	if !strings.Contains(content, "INSERT INTO site_settings (id) VALUES (1)") {
		t.Error("settings seed row missing")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
