package batch

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
)

func TestQualityGate_Evaluate(t *testing.T) {
	gate := QualityGate{Enabled: true, Threshold: 0.8, MaxConsecutive: 2}
	tests := []struct {
		name        string
		stats       BatchStats
		consecutive int
		wantCount   int
		wantPause   bool
	}{
		{"healthy batch resets", BatchStats{Processed: 10, Successful: 9, Failed: 1}, 1, 0, false},
		{"at threshold is healthy", BatchStats{Processed: 10, Successful: 8, Failed: 2}, 1, 0, false},
		{"first failing batch", BatchStats{Processed: 10, Successful: 5, Failed: 5}, 0, 1, false},
		{"second failing batch pauses", BatchStats{Processed: 10, Successful: 5, Failed: 5}, 1, 2, true},
		{"skips excluded from rate", BatchStats{Processed: 10, Successful: 4, Failed: 1, Skipped: 5}, 1, 0, false},
		{"all skipped leaves counter", BatchStats{Processed: 4, Skipped: 4}, 1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gate.Evaluate(tt.stats, tt.consecutive)
			if d.Consecutive != tt.wantCount || d.Pause != tt.wantPause {
				t.Fatalf("got consecutive=%d pause=%v, want %d/%v", d.Consecutive, d.Pause, tt.wantCount, tt.wantPause)
			}
			if d.Pause && d.Reason == "" {
				t.Fatalf("pause without reason")
			}
		})
	}
}

func TestQualityGate_DisabledNeverPauses(t *testing.T) {
	gate := QualityGate{Threshold: 0.8, MaxConsecutive: 1}
	d := gate.Evaluate(BatchStats{Processed: 3, Failed: 3}, 5)
	if d.Pause || d.Consecutive != 6 {
		t.Fatalf("expected counted but not paused, got %+v", d)
	}
}

func TestETAEstimator(t *testing.T) {
	e := newETAEstimator(0.3)
	if e.Remaining(100, 10) != 0 {
		t.Fatalf("expected no estimate before the first batch")
	}
	e.Observe(10 * time.Second)
	e.Observe(20 * time.Second)
	// 0.3*20 + 0.7*10 = 13s per batch, 3 batches left
	if got := e.Remaining(25, 10).Round(time.Millisecond); got != 39*time.Second {
		t.Fatalf("expected 39s, got %s", got)
	}
}

func TestTopCategories(t *testing.T) {
	counts := map[string]int{
		string(models.FailureMissingTerm):        4,
		string(models.FailureMissingStudent):     4,
		string(models.FailureMissingData):        1,
		string(models.FailureProcessingError):    7,
		string(models.FailureInvalidPaymentData): 0,
	}
	top := TopCategories(counts, 3)
	want := []models.FailureCategory{models.FailureProcessingError, models.FailureMissingStudent, models.FailureMissingTerm}
	if len(top) != 3 {
		t.Fatalf("expected 3 categories, got %+v", top)
	}
	for i, c := range want {
		if top[i].Category != c {
			t.Fatalf("position %d: got %s want %s", i, top[i].Category, c)
		}
	}
}
