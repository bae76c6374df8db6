package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RebuildConfig holds the tunables of a receipt rebuild run. Values come from
// REBUILD_* env vars; command-line flags override them.
type RebuildConfig struct {
	SourcePath             string
	Delimiter              rune
	BatchSize              int
	StartFrom              int
	MaxRecords             int
	SuccessRateThreshold   float64
	MaxConsecutiveFailures int
	QualityGateEnabled     bool
	AutoResume             bool
	TermFilter             string
	ProgressInterval       int
	ReportDir              string
	LookupCacheSize        int
	LockTTL                time.Duration
	ScholarshipKeywords    []string
}

func DefaultRebuildConfig() RebuildConfig {
	return RebuildConfig{
		Delimiter:              ',',
		BatchSize:              500,
		SuccessRateThreshold:   0.80,
		MaxConsecutiveFailures: 3,
		QualityGateEnabled:     true,
		ProgressInterval:       10,
		ReportDir:              "./reports",
		LookupCacheSize:        20000,
		LockTTL:                5 * time.Minute,
	}
}

// LoadRebuildConfig returns DefaultRebuildConfig overlaid with REBUILD_* env vars.
func LoadRebuildConfig() RebuildConfig {
	cfg := DefaultRebuildConfig()
	cfg.SourcePath = stringFromEnv("REBUILD_SOURCE", cfg.SourcePath)
	if d := os.Getenv("REBUILD_DELIMITER"); d != "" {
		cfg.Delimiter = ParseDelimiter(d)
	}
	cfg.BatchSize = intFromEnv("REBUILD_BATCH_SIZE", cfg.BatchSize)
	cfg.StartFrom = intFromEnv("REBUILD_START_FROM", cfg.StartFrom)
	cfg.MaxRecords = intFromEnv("REBUILD_MAX_RECORDS", cfg.MaxRecords)
	cfg.SuccessRateThreshold = floatFromEnv("REBUILD_SUCCESS_THRESHOLD", cfg.SuccessRateThreshold)
	cfg.MaxConsecutiveFailures = intFromEnv("REBUILD_MAX_CONSECUTIVE_FAILURES", cfg.MaxConsecutiveFailures)
	cfg.QualityGateEnabled = boolFromEnv("REBUILD_QUALITY_GATE", cfg.QualityGateEnabled)
	cfg.AutoResume = boolFromEnv("REBUILD_AUTO_RESUME", cfg.AutoResume)
	cfg.TermFilter = stringFromEnv("REBUILD_TERM", cfg.TermFilter)
	cfg.ProgressInterval = intFromEnv("REBUILD_PROGRESS_INTERVAL", cfg.ProgressInterval)
	cfg.ReportDir = stringFromEnv("REBUILD_REPORT_DIR", cfg.ReportDir)
	cfg.LookupCacheSize = intFromEnv("REBUILD_LOOKUP_CACHE_SIZE", cfg.LookupCacheSize)
	cfg.LockTTL = time.Duration(intFromEnv("REBUILD_LOCK_TTL_SECONDS", int(cfg.LockTTL/time.Second))) * time.Second
	if kw := strings.TrimSpace(os.Getenv("REBUILD_SCHOLARSHIP_KEYWORDS")); kw != "" {
		for _, k := range strings.Split(kw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.ScholarshipKeywords = append(cfg.ScholarshipKeywords, k)
			}
		}
	}
	return cfg
}

// ParseDelimiter accepts a literal character or one of "tab", "pipe", "comma", "semicolon".
func ParseDelimiter(s string) rune {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tab", `\t`:
		return '\t'
	case "pipe", "|":
		return '|'
	case "semicolon", ";":
		return ';'
	case "comma", ",", "":
		return ','
	}
	return []rune(s)[0]
}

func stringFromEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func floatFromEnv(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func boolFromEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
