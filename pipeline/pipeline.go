// Package pipeline runs one collection: reuse or rebuild the saved dataset,
// enrich it, and checkpoint it to disk so that fetched data survives a
// failed or interrupted enrichment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"reddit-nlp/dataset"
	"reddit-nlp/enrich"
	"reddit-nlp/flatten"
	"reddit-nlp/logging"
	"reddit-nlp/textnorm"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// ThreadHandle is a fetched submission whose comment tree can be loaded.
type ThreadHandle interface {
	flatten.Source
	ExpandAllComments(ctx context.Context) error
}

// ThreadSource lists a subreddit's top submissions.
type ThreadSource interface {
	TopThreads(ctx context.Context, subreddit string, limit int) ([]ThreadHandle, error)
}

// Enricher fills in the entity fields of a dataset.
type Enricher interface {
	Enrich(ctx context.Context, ds *dataset.Dataset) (enrich.RunStats, error)
}

// ArticleScraper returns the readable text of a link post's target. An
// empty string means there was nothing worth keeping.
type ArticleScraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// RunRecord is the bookkeeping row for one run.
type RunRecord struct {
	ID             string
	Subreddit      string
	RequestedCount int
	CacheHit       bool
	Threads        int
	Entries        int
	Stats          enrich.RunStats
	Status         string
	Err            error
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// RunStore keeps run history and a queryable copy of the dataset.
type RunStore interface {
	RecordRun(ctx context.Context, run *RunRecord) error
	ExportDataset(ctx context.Context, ds *dataset.Dataset) error
}

// Reporter is told about every finished run.
type Reporter interface {
	Report(ctx context.Context, result *Result) error
}

// Result describes a finished run.
type Result struct {
	RunID      string
	Subreddit  string
	Requested  int
	OutputPath string
	CacheHit   bool
	Threads    int
	Entries    int
	Stats      enrich.RunStats
	Status     string
	Err        error
	Elapsed    time.Duration
	Dataset    *dataset.Dataset
}

// Runner orchestrates the collection workflow.
type Runner struct {
	source      ThreadSource
	enricher    Enricher
	scraper     ArticleScraper
	store       RunStore
	reporter    Reporter
	clock       clockwork.Clock
	subreddit   string
	threadCount int
	outputPath  string
}

// Option configures a Runner.
type Option func(*Runner)

// WithSubreddit sets the subreddit to collect.
func WithSubreddit(name string) Option {
	return func(r *Runner) {
		r.subreddit = name
	}
}

// WithThreadCount sets how many top threads to collect.
func WithThreadCount(n int) Option {
	return func(r *Runner) {
		r.threadCount = n
	}
}

// WithOutputPath sets where the dataset is saved.
func WithOutputPath(path string) Option {
	return func(r *Runner) {
		r.outputPath = path
	}
}

// WithScraper enables fetching article text for link posts.
func WithScraper(s ArticleScraper) Option {
	return func(r *Runner) {
		r.scraper = s
	}
}

// WithStore enables run history and the database export.
func WithStore(s RunStore) Option {
	return func(r *Runner) {
		r.store = s
	}
}

// WithReporter enables run reports.
func WithReporter(rep Reporter) Option {
	return func(r *Runner) {
		r.reporter = rep
	}
}

// WithClock sets the clock used for run timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// NewRunner creates a new collection runner.
func NewRunner(source ThreadSource, enricher Enricher, opts ...Option) *Runner {
	r := &Runner{
		source:      source,
		enricher:    enricher,
		clock:       clockwork.NewRealClock(),
		subreddit:   "news",
		threadCount: 10,
		outputPath:  "./commentData.json",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one collection. The returned Result is never nil; the error
// is the first failure that stopped the run. Whatever was fetched and
// enriched before a failure is saved to the output path.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		RunID:      uuid.NewString(),
		Subreddit:  r.subreddit,
		Requested:  r.threadCount,
		OutputPath: r.outputPath,
		Status:     StatusRunning,
	}
	ctx = logging.WithRunID(ctx, result.RunID)
	// Bookkeeping still happens after an interruption.
	bookCtx := context.WithoutCancel(ctx)
	startedAt := r.clock.Now().UTC()

	slog.InfoContext(ctx, "starting collection run",
		"subreddit", r.subreddit, "thread_count", r.threadCount, "output", r.outputPath)
	r.record(bookCtx, result, startedAt, false)

	err := r.collect(ctx, result)

	result.Elapsed = r.clock.Since(startedAt)
	result.Err = err
	switch {
	case err == nil:
		result.Status = StatusSucceeded
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		result.Status = StatusCancelled
	default:
		result.Status = StatusFailed
	}

	r.record(bookCtx, result, startedAt, true)
	if r.reporter != nil {
		if rerr := r.reporter.Report(bookCtx, result); rerr != nil {
			slog.WarnContext(ctx, "failed to send run report", "error", rerr)
		}
	}

	if err != nil {
		slog.ErrorContext(ctx, "collection run failed",
			"status", result.Status, "calls", result.Stats.Calls, "outages", result.Stats.Outages, "error", err)
	} else {
		slog.InfoContext(ctx, "collection run complete",
			"cache_hit", result.CacheHit, "threads", result.Threads, "entries", result.Entries,
			"calls", result.Stats.Calls, "outages", result.Stats.Outages, "skipped", result.Stats.Skipped)
	}
	return result, err
}

func (r *Runner) collect(ctx context.Context, result *Result) error {
	ds, err := dataset.Load(r.outputPath, r.threadCount)
	switch {
	case err == nil:
		result.CacheHit = true
		slog.InfoContext(ctx, "reusing saved dataset", "path", r.outputPath, "threads", len(ds.Threads))
	case errors.Is(err, dataset.ErrNeedsRebuild):
		slog.InfoContext(ctx, "rebuilding dataset", "path", r.outputPath, "reason", err.Error())
		ds, err = r.fetch(ctx)
		if err != nil {
			return err
		}
		// Raw checkpoint before any enrichment.
		if err := dataset.Save(ds, r.outputPath); err != nil {
			return fmt.Errorf("save fetched dataset: %w", err)
		}
	default:
		return fmt.Errorf("load dataset: %w", err)
	}

	result.Dataset = ds
	result.Threads = len(ds.Threads)
	result.Entries = ds.CountEntries()

	stats, enrichErr := r.enricher.Enrich(ctx, ds)
	result.Stats = stats

	// Final checkpoint, also after a failed or interrupted enrichment.
	if err := dataset.Save(ds, r.outputPath); err != nil {
		saveErr := fmt.Errorf("save enriched dataset: %w", err)
		if enrichErr != nil {
			return errors.Join(fmt.Errorf("enrich: %w", enrichErr), saveErr)
		}
		return saveErr
	}
	slog.InfoContext(ctx, "dataset saved", "path", r.outputPath, "entries", ds.EntryCount)

	if r.store != nil {
		if err := r.store.ExportDataset(context.WithoutCancel(ctx), ds); err != nil {
			slog.WarnContext(ctx, "failed to export dataset", "error", err)
		}
	}

	if enrichErr != nil {
		return fmt.Errorf("enrich: %w", enrichErr)
	}
	return nil
}

// fetch builds a fresh dataset from the source.
func (r *Runner) fetch(ctx context.Context) (*dataset.Dataset, error) {
	handles, err := r.source.TopThreads(ctx, r.subreddit, r.threadCount)
	if err != nil {
		return nil, fmt.Errorf("fetch top threads: %w", err)
	}
	slog.InfoContext(ctx, "fetched top threads", "requested", r.threadCount, "count", len(handles))

	ds := dataset.New(r.subreddit, r.threadCount)
	ds.FetchedAt = r.clock.Now().UTC()

	for rank, h := range handles {
		if err := h.ExpandAllComments(ctx); err != nil {
			return nil, fmt.Errorf("expand comments: %w", err)
		}

		thread, err := flatten.Thread(h)
		if err != nil {
			return nil, fmt.Errorf("flatten thread: %w", err)
		}
		thread.Rank = rank

		if r.scraper != nil && isLinkPost(thread) {
			r.scrapeArticle(ctx, thread)
		}

		ds.AddThread(thread)
		slog.DebugContext(ctx, "flattened thread", "thread", thread.ID, "rank", rank, "comments", len(thread.Comments))
	}

	return ds, nil
}

func isLinkPost(t *dataset.Thread) bool {
	return t.Selftext == "" && t.URL != ""
}

// scrapeArticle stores the normalized article text of a link post. Failures
// only cost the article text.
func (r *Runner) scrapeArticle(ctx context.Context, thread *dataset.Thread) {
	text, err := r.scraper.Scrape(ctx, thread.URL)
	if err != nil {
		slog.WarnContext(ctx, "scrape failed, keeping thread without article text", "url", thread.URL, "error", err)
		return
	}
	if text == "" {
		return
	}
	thread.ArticleText = textnorm.Normalize(&text)
}

func (r *Runner) record(ctx context.Context, result *Result, startedAt time.Time, finished bool) {
	if r.store == nil {
		return
	}

	rec := &RunRecord{
		ID:             result.RunID,
		Subreddit:      result.Subreddit,
		RequestedCount: result.Requested,
		CacheHit:       result.CacheHit,
		Threads:        result.Threads,
		Entries:        result.Entries,
		Stats:          result.Stats,
		Status:         result.Status,
		Err:            result.Err,
		StartedAt:      startedAt,
	}
	if finished {
		finishedAt := startedAt.Add(result.Elapsed)
		rec.FinishedAt = &finishedAt
	}

	if err := r.store.RecordRun(ctx, rec); err != nil {
		slog.WarnContext(ctx, "failed to record run", "status", result.Status, "error", err)
	}
}
