// Package harvest fetches per-model endpoint documents for a list of model
// ids through a bounded worker pool. Failures are recorded per task and never
// interrupt the run.
package harvest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/everstacklabs/pricewatch/internal/pool"
)

// DryRunCap is the number of model ids harvested in dry-run mode.
const DryRunCap = 15

// TaskResult is the outcome of one model's endpoint fetch. Exactly one
// exists per task, at the task's index.
type TaskResult struct {
	ModelID string
	OK      bool
	Payload json.RawMessage
	Error   string
}

// TaskError is a recorded per-model failure.
type TaskError struct {
	ModelID string `json:"modelId" yaml:"modelId"`
	Error   string `json:"error" yaml:"error"`
}

// EndpointSource fetches the endpoint document for a model.
type EndpointSource interface {
	Endpoints(ctx context.Context, modelID string) (json.RawMessage, error)
}

// ProgressFunc observes completions. It must not block for long and has
// no effect on the harvest.
type ProgressFunc func(completed, total int)

// LogProgress renders progress through slog.
func LogProgress(completed, total int) {
	slog.Info("progress", "completed", completed, "total", total)
}

// Harvester drives endpoint fetches for many models.
type Harvester struct {
	src         EndpointSource
	concurrency int
	progress    ProgressFunc
}

// New creates a Harvester. A nil progress func disables progress events.
func New(src EndpointSource, concurrency int, progress ProgressFunc) *Harvester {
	return &Harvester{src: src, concurrency: concurrency, progress: progress}
}

// SelectModelIDs applies the truncation policies in order: a positive limit
// first, then the dry-run cap on whatever remains.
func SelectModelIDs(ids []string, limit int, dryRun bool) []string {
	out := ids
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if dryRun && len(out) > DryRunCap {
		out = out[:DryRunCap]
	}
	return out
}

// ProgressEvery is the completion interval between progress events.
func ProgressEvery(total int) int {
	return max(10, total/20)
}

// Harvest fetches every model's endpoints and returns results in input order.
func (h *Harvester) Harvest(ctx context.Context, modelIDs []string) []TaskResult {
	total := len(modelIDs)
	every := ProgressEvery(total)
	var completed atomic.Int64

	done := func() {
		n := int(completed.Add(1))
		if h.progress != nil && (n%every == 0 || n == total) {
			h.progress(n, total)
		}
	}

	return pool.Run(ctx, modelIDs, h.concurrency, func(ctx context.Context, _ int, id string) TaskResult {
		defer done()

		payload, err := h.src.Endpoints(ctx, id)
		if err != nil {
			slog.Debug("endpoint fetch failed", "model", id, "error", err)
			return TaskResult{ModelID: id, Error: err.Error()}
		}
		return TaskResult{ModelID: id, OK: true, Payload: payload}
	})
}

// Errors lists the failed results in task order.
func Errors(results []TaskResult) []TaskError {
	errs := make([]TaskError, 0)
	for _, r := range results {
		if !r.OK {
			errs = append(errs, TaskError{ModelID: r.ModelID, Error: r.Error})
		}
	}
	return errs
}

// Succeeded counts successful results.
func Succeeded(results []TaskResult) int {
	n := 0
	for _, r := range results {
		if r.OK {
			n++
		}
	}
	return n
}
