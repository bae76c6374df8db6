package batch

import (
	"math"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
)

// Progress is the periodic snapshot delivered to callbacks.
type Progress struct {
	RunId      string          `json:"run_id"`
	BatchNo    int             `json:"batch_no"`
	Processed  int             `json:"processed"`
	Total      int             `json:"total"`
	Percent    float64         `json:"percent"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	Throughput float64         `json:"throughput"`
	Elapsed    time.Duration   `json:"elapsed"`
	ETA        time.Duration   `json:"eta"`
	TopErrors  []CategoryCount `json:"top_errors"`
}

type ProgressCallback func(Progress)

type CategoryCount struct {
	Category models.FailureCategory `json:"category"`
	Count    int                    `json:"count"`
}

// TopCategories returns the n largest counts, ties broken by taxonomy order.
func TopCategories(counts map[string]int, n int) []CategoryCount {
	order := map[models.FailureCategory]int{}
	for i, c := range models.AllFailureCategories {
		order[c] = i
	}
	var out []CategoryCount
	for k, v := range counts {
		if v > 0 {
			out = append(out, CategoryCount{Category: models.FailureCategory(k), Count: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return order[out[i].Category] < order[out[j].Category]
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// etaEstimator keeps an exponential moving average of batch durations.
type etaEstimator struct {
	alpha float64
	avg   float64
	seen  bool
}

func newETAEstimator(alpha float64) *etaEstimator {
	return &etaEstimator{alpha: alpha}
}

func (e *etaEstimator) Observe(d time.Duration) {
	v := d.Seconds()
	if !e.seen {
		e.avg = v
		e.seen = true
		return
	}
	e.avg = e.alpha*v + (1-e.alpha)*e.avg
}

// Remaining estimates the time left for remainingRecords at batchSize per batch.
func (e *etaEstimator) Remaining(remainingRecords, batchSize int) time.Duration {
	if !e.seen || remainingRecords <= 0 || batchSize <= 0 {
		return 0
	}
	batches := math.Ceil(float64(remainingRecords) / float64(batchSize))
	return time.Duration(batches * e.avg * float64(time.Second))
}
