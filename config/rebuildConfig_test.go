package config

import (
	"testing"
	"time"
)

func TestLoadRebuildConfig_Defaults(t *testing.T) {
	for _, k := range []string{
		"REBUILD_BATCH_SIZE", "REBUILD_SUCCESS_THRESHOLD", "REBUILD_QUALITY_GATE",
		"REBUILD_MAX_CONSECUTIVE_FAILURES", "REBUILD_DELIMITER", "REBUILD_SCHOLARSHIP_KEYWORDS",
	} {
		t.Setenv(k, "")
	}
	cfg := LoadRebuildConfig()
	if cfg.BatchSize != 500 {
		t.Fatalf("expected batch size 500, got %d", cfg.BatchSize)
	}
	if cfg.SuccessRateThreshold != 0.80 {
		t.Fatalf("expected threshold 0.80, got %v", cfg.SuccessRateThreshold)
	}
	if !cfg.QualityGateEnabled || cfg.MaxConsecutiveFailures != 3 {
		t.Fatalf("unexpected gate defaults: %+v", cfg)
	}
	if cfg.Delimiter != ',' {
		t.Fatalf("expected comma delimiter, got %q", cfg.Delimiter)
	}
	if cfg.LockTTL != 5*time.Minute {
		t.Fatalf("expected 5m lock ttl, got %s", cfg.LockTTL)
	}
}

func TestLoadRebuildConfig_EnvOverrides(t *testing.T) {
	t.Setenv("REBUILD_BATCH_SIZE", "250")
	t.Setenv("REBUILD_SUCCESS_THRESHOLD", "0.95")
	t.Setenv("REBUILD_QUALITY_GATE", "false")
	t.Setenv("REBUILD_DELIMITER", "tab")
	t.Setenv("REBUILD_TERM", "2019T1")
	t.Setenv("REBUILD_SCHOLARSHIP_KEYWORDS", "sponsor, endowment ,")
	t.Setenv("REBUILD_MAX_RECORDS", "not-a-number")

	cfg := LoadRebuildConfig()
	if cfg.BatchSize != 250 {
		t.Fatalf("expected 250, got %d", cfg.BatchSize)
	}
	if cfg.SuccessRateThreshold != 0.95 {
		t.Fatalf("expected 0.95, got %v", cfg.SuccessRateThreshold)
	}
	if cfg.QualityGateEnabled {
		t.Fatalf("expected gate disabled")
	}
	if cfg.Delimiter != '\t' {
		t.Fatalf("expected tab delimiter, got %q", cfg.Delimiter)
	}
	if cfg.TermFilter != "2019T1" {
		t.Fatalf("expected term filter, got %q", cfg.TermFilter)
	}
	if len(cfg.ScholarshipKeywords) != 2 || cfg.ScholarshipKeywords[1] != "endowment" {
		t.Fatalf("unexpected keywords: %v", cfg.ScholarshipKeywords)
	}
	if cfg.MaxRecords != 0 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.MaxRecords)
	}
}

func TestParseDelimiter(t *testing.T) {
	cases := map[string]rune{"pipe": '|', "|": '|', ";": ';', "comma": ',', "": ',', "~": '~', `\t`: '\t'}
	for in, want := range cases {
		if got := ParseDelimiter(in); got != want {
			t.Fatalf("ParseDelimiter(%q) = %q, want %q", in, got, want)
		}
	}
}
