package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/everstacklabs/pricewatch/internal/catalog"
	"github.com/everstacklabs/pricewatch/internal/config"
	"github.com/everstacklabs/pricewatch/internal/extract"
	"github.com/everstacklabs/pricewatch/internal/harvest"
	"github.com/everstacklabs/pricewatch/internal/openrouter"
	"github.com/everstacklabs/pricewatch/internal/snapshot"
)

// ExitCode constants for CLI.
const (
	ExitSuccess = 0
	ExitFatal   = 1 // Invalid config or catalog unavailable
	ExitChanges = 2 // Changes detected (diff mode)
	ExitInvalid = 3 // Snapshot validation errors
)

// Source provides both remote documents the harvest needs.
type Source interface {
	catalog.Source
	harvest.EndpointSource
}

// Sink persists finished artifacts.
type Sink interface {
	WriteSummary(s *RunSummary) (string, error)
	WriteSnapshot(s *snapshot.ProviderSnapshot) (string, error)
}

// Settings echoes the configuration a run used.
type Settings struct {
	Providers   []string `json:"providers" yaml:"providers"`
	Concurrency int      `json:"concurrency" yaml:"concurrency"`
	Retries     int      `json:"retries" yaml:"retries"`
	TimeoutMs   int      `json:"timeoutMs" yaml:"timeoutMs"`
	DryRun      bool     `json:"dryRun" yaml:"dryRun"`
	Limit       *int     `json:"limit" yaml:"limit"`
}

// Counts aggregates a run.
type Counts struct {
	CatalogModelCount          int `json:"catalogModelCount" yaml:"catalogModelCount"`
	ScannedModelCount          int `json:"scannedModelCount" yaml:"scannedModelCount"`
	SuccessfulEndpointRequests int `json:"successfulEndpointRequests" yaml:"successfulEndpointRequests"`
	FailedEndpointRequests     int `json:"failedEndpointRequests" yaml:"failedEndpointRequests"`
	ExtractedEndpointRows      int `json:"extractedEndpointRows" yaml:"extractedEndpointRows"`
}

// RunSummary is the unfiltered superset a run produced: every extracted row
// plus every per-model failure.
type RunSummary struct {
	RunID       string              `json:"runId" yaml:"runId"`
	StartedAt   time.Time           `json:"startedAt" yaml:"startedAt"`
	GeneratedAt time.Time           `json:"generatedAt" yaml:"generatedAt"`
	Source      string              `json:"source" yaml:"source"`
	Settings    Settings            `json:"settings" yaml:"settings"`
	Summary     Counts              `json:"summary" yaml:"summary"`
	Errors      []harvest.TaskError `json:"errors" yaml:"errors"`
	Rows        []extract.Row       `json:"rows" yaml:"rows"`
}

// Result is everything a run hands to the sink.
type Result struct {
	Summary   *RunSummary
	Snapshots []snapshot.ProviderSnapshot
}

// WriteResult lists the files a sync wrote.
type WriteResult struct {
	SummaryPath   string
	SnapshotPaths []string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProgress sets the progress observer. The default logs through slog.
func WithProgress(fn harvest.ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline orchestrates catalog load, harvest, extraction and grouping.
type Pipeline struct {
	cfg      *config.Config
	src      Source
	progress harvest.ProgressFunc
	now      func() time.Time
}

// New creates a new Pipeline.
func New(cfg *config.Config, src Source, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		src:      src,
		progress: harvest.LogProgress,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one harvest. A config error or catalog load failure aborts
// the run; per-model failures are recorded in the summary.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	startedAt := p.now().UTC()
	slog.Info("starting provider pricing harvest",
		"providers", p.cfg.Providers,
		"concurrency", p.cfg.Concurrency,
		"retries", p.cfg.Retries,
		"timeout_ms", p.cfg.TimeoutMs)

	cat, err := catalog.Load(ctx, p.src)
	if err != nil {
		return nil, err
	}

	modelIDs := harvest.SelectModelIDs(cat.ModelIDs(), p.cfg.Limit, p.cfg.DryRun)
	slog.Info("fetching endpoints", "catalog_size", cat.Size, "models", len(modelIDs))

	results := harvest.New(p.src, p.cfg.Concurrency, p.progress).Harvest(ctx, modelIDs)
	errs := harvest.Errors(results)

	rows := extract.Extract(results, extract.NewProviderSet(p.cfg.Providers), cat, startedAt)

	generatedAt := p.generatedAt(startedAt)
	snapshots := snapshot.Build(rows, p.cfg.Providers, generatedAt)

	summary := &RunSummary{
		RunID:       uuid.NewString(),
		StartedAt:   startedAt,
		GeneratedAt: generatedAt,
		Source:      openrouter.Source,
		Settings:    p.settings(),
		Summary: Counts{
			CatalogModelCount:          cat.Size,
			ScannedModelCount:          len(modelIDs),
			SuccessfulEndpointRequests: harvest.Succeeded(results),
			FailedEndpointRequests:     len(errs),
			ExtractedEndpointRows:      len(rows),
		},
		Errors: errs,
		Rows:   rows,
	}

	slog.Info("harvest complete",
		"run_id", summary.RunID,
		"rows", len(rows),
		"errors", len(errs))

	return &Result{Summary: summary, Snapshots: snapshots}, nil
}

// Sync runs the harvest and hands every artifact to the sink.
func (p *Pipeline) Sync(ctx context.Context, sink Sink) (*Result, *WriteResult, error) {
	res, err := p.Run(ctx)
	if err != nil {
		return nil, nil, err
	}

	wr := &WriteResult{}
	wr.SummaryPath, err = sink.WriteSummary(res.Summary)
	if err != nil {
		return res, nil, fmt.Errorf("writing run summary: %w", err)
	}
	for i := range res.Snapshots {
		path, err := sink.WriteSnapshot(&res.Snapshots[i])
		if err != nil {
			return res, nil, fmt.Errorf("writing %s snapshot: %w", res.Snapshots[i].ProviderName, err)
		}
		wr.SnapshotPaths = append(wr.SnapshotPaths, path)
	}
	return res, wr, nil
}

// generatedAt is taken after aggregation and is always later than the run
// start.
func (p *Pipeline) generatedAt(startedAt time.Time) time.Time {
	t := p.now().UTC()
	if !t.After(startedAt) {
		t = startedAt.Add(time.Millisecond)
	}
	return t
}

func (p *Pipeline) settings() Settings {
	s := Settings{
		Providers:   p.cfg.Providers,
		Concurrency: p.cfg.Concurrency,
		Retries:     p.cfg.Retries,
		TimeoutMs:   p.cfg.TimeoutMs,
		DryRun:      p.cfg.DryRun,
	}
	if p.cfg.Limit > 0 {
		limit := p.cfg.Limit
		s.Limit = &limit
	}
	return s
}
