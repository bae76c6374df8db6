package models

import (
	"encoding/json"
	"time"
)

// BatchRun is the persisted state and checkpoint of one rebuild run.
type BatchRun struct {
	ID                  int            `gorm:"primary_key" json:"id"`
	RunId               string         `gorm:"size:36;not null;uniqueIndex" json:"run_id"`
	Status              BatchRunStatus `gorm:"size:20;not null;index" json:"status"`
	SourcePath          string         `gorm:"size:512" json:"source_path"`
	TermFilter          string         `gorm:"size:64;index" json:"term_filter"`
	BatchSize           int            `json:"batch_size"`
	StartCursor         int            `json:"start_cursor"`
	CursorPosition      int            `json:"cursor_position"`
	TotalRecords        int            `json:"total_records"`
	ProcessedCount      int            `json:"processed_count"`
	SuccessfulCount     int            `json:"successful_count"`
	FailedCount         int            `json:"failed_count"`
	SkippedCount        int            `json:"skipped_count"`
	BatchesCompleted    int            `json:"batches_completed"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	IsPaused            bool           `gorm:"not null;default:false" json:"is_paused"`
	PauseReason         string         `gorm:"size:255" json:"pause_reason"`
	ErrorCountsJSON     []byte         `gorm:"type:json" json:"error_counts"`
	LastError           string         `gorm:"type:text" json:"last_error"`
	ResumeCount         int            `json:"resume_count"`
	StartedAt           time.Time      `json:"started_at"`
	LastCheckpointAt    *time.Time     `json:"last_checkpoint_at"`
	FinishedAt          *time.Time     `json:"finished_at"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *BatchRun) ErrorCounts() map[string]int {
	out := map[string]int{}
	if len(r.ErrorCountsJSON) == 0 {
		return out
	}
	_ = json.Unmarshal(r.ErrorCountsJSON, &out)
	return out
}

func (r *BatchRun) SetErrorCounts(counts map[string]int) {
	b, err := json.Marshal(counts)
	if err != nil {
		return
	}
	r.ErrorCountsJSON = b
}

// SuccessRate is successful / (processed - skipped); 0 when nothing was attempted.
func (r *BatchRun) SuccessRate() float64 {
	attempted := r.ProcessedCount - r.SkippedCount
	if attempted <= 0 {
		return 0
	}
	return float64(r.SuccessfulCount) / float64(attempted)
}
