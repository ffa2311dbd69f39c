package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadStockPolicyDefaultsToAllow(t *testing.T) {
	t.Setenv("STOCK_POLICY", "")

	cfg := Load()
	if cfg.StockPolicy != "allow" {
		t.Fatalf("expected default stock policy allow, got %q", cfg.StockPolicy)
	}
}

func TestLoadNormalizesStockPolicy(t *testing.T) {
	t.Setenv("STOCK_POLICY", " Reject ")

	cfg := Load()
	if cfg.StockPolicy != "reject" {
		t.Fatalf("expected normalized stock policy reject, got %q", cfg.StockPolicy)
	}
}

func TestLoadCoercesBadAnalysisSettings(t *testing.T) {
	t.Setenv("ANALYSIS_PERIOD_DAYS", "not-a-number")
	t.Setenv("ANALYSIS_TTL_SECONDS", "-5")

	cfg := Load()
	if cfg.AnalysisPeriodDays != 90 {
		t.Fatalf("expected period fallback 90, got %d", cfg.AnalysisPeriodDays)
	}
	if cfg.AnalysisTTLSeconds != 300 {
		t.Fatalf("expected ttl fallback 300, got %d", cfg.AnalysisTTLSeconds)
	}
}
