package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"reddit-nlp/config"
	"reddit-nlp/dataset"
	"reddit-nlp/enrich"
	"reddit-nlp/flatten"
	"reddit-nlp/logging"
	"reddit-nlp/nlp"
	"reddit-nlp/notify"
	"reddit-nlp/pipeline"
	"reddit-nlp/ranker"
	"reddit-nlp/reddit"
	"reddit-nlp/scheduler"
	"reddit-nlp/scraper"
	"reddit-nlp/storage"
)

const topEntityCount = 5

func main() {
	os.Exit(run())
}

func run() int {
	var (
		subreddit  = flag.String("subreddit", "", "Subreddit to examine (default from config, else news)")
		count      = flag.Int("n", 0, "Number of top threads to examine (default from config, else 10)")
		output     = flag.String("o", "", "Output file for the dataset (default ./commentData.json)")
		keys       = flag.String("k", "", "Path to the credentials file (default ./apiKeys.yaml)")
		configPath = flag.String("config", config.GetConfigPath(), "Path to the YAML config file (or set REDDIT_NLP_CONFIG)")
		schedule   = flag.String("schedule", "", "Run daily at HH:MM instead of once")
		history    = flag.Int("history", 0, "Print the N most recent runs from db_path and exit")
		runID      = flag.String("run", "", "Print one recorded run from db_path and exit")
		mentions   = flag.String("mentions", "", "Print every exported mention of an entity from db_path and exit")
	)
	flag.Parse()

	logging.Setup(os.Stdout, "info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		return 1
	}

	// Flags override the config file.
	if *subreddit != "" {
		cfg.Subreddit = *subreddit
	}
	if *count != 0 {
		cfg.ThreadCount = *count
	}
	if *output != "" {
		cfg.OutputPath = *output
	}
	if *keys != "" {
		cfg.CredentialsPath = *keys
	}
	if *schedule != "" {
		cfg.Schedule = *schedule
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid options", "error", err)
		return 1
	}

	logging.Setup(os.Stdout, cfg.LogLevel)
	slog.Info("config loaded", "path", *configPath, "subreddit", cfg.Subreddit, "thread_count", cfg.ThreadCount)

	if *history > 0 || *runID != "" || *mentions != "" {
		if err := inspect(cfg, *history, *runID, *mentions); err != nil {
			slog.Error("inspect failed", "error", err)
			return 1
		}
		return 0
	}

	creds, err := config.LoadCredentials(cfg.CredentialsPath)
	if err != nil {
		slog.Error("failed to load credentials", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, cleanup, err := buildRunner(cfg, creds)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		return 1
	}
	defer cleanup()

	if cfg.Schedule == "" {
		result, err := runner.Run(ctx)
		logSummary(result)
		if err != nil {
			return 1
		}
		return 0
	}

	sched, err := scheduler.NewScheduler(cfg.Timezone)
	if err != nil {
		slog.Error("failed to initialize scheduler", "timezone", cfg.Timezone, "error", err)
		return 1
	}
	if err := sched.Schedule(cfg.Schedule, func(jobCtx context.Context) {
		result, _ := runner.Run(jobCtx)
		logSummary(result)
		slog.Info("next collection scheduled", "at", sched.Next())
	}); err != nil {
		slog.Error("failed to schedule collection", "error", err)
		return 1
	}
	sched.Start()
	slog.Info("collection scheduled", "time", cfg.Schedule, "timezone", cfg.Timezone, "next", sched.Next())

	<-ctx.Done()
	slog.Info("received shutdown signal")
	sched.Stop()
	return 0
}

// buildRunner wires the collection pipeline. The returned cleanup closes
// whatever was opened.
func buildRunner(cfg *config.Config, creds *config.Credentials) (*pipeline.Runner, func(), error) {
	cleanup := func() {}

	redditClient := reddit.NewClient(reddit.Credentials{
		ClientID:     creds.Reddit.ClientID,
		ClientSecret: creds.Reddit.ClientSecret,
		UserAgent:    creds.Reddit.UserAgent,
	}, redditOptions(cfg)...)

	nlpOpts := []nlp.Option{nlp.WithTimeout(cfg.FetchTimeout())}
	if cfg.LanguageBaseURL != "" {
		nlpOpts = append(nlpOpts, nlp.WithBaseURL(cfg.LanguageBaseURL))
	}
	if cfg.Language != "" {
		nlpOpts = append(nlpOpts, nlp.WithLanguage(cfg.Language))
	}
	nlpClient := nlp.NewClient(creds.LanguageAPIKey, nlpOpts...)

	policy := enrich.RetryPolicy{Backoff: enrich.FixedBackoff(cfg.RetryBackoff())}
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries + 1
	}
	driver := enrich.NewDriver(nlpClient, enrich.WithRetryPolicy(policy))

	opts := []pipeline.Option{
		pipeline.WithSubreddit(cfg.Subreddit),
		pipeline.WithThreadCount(cfg.ThreadCount),
		pipeline.WithOutputPath(cfg.OutputPath),
	}

	if cfg.ScrapeLinks {
		articleScraper := scraper.NewScraper(
			scraper.WithTimeout(cfg.FetchTimeout()),
			scraper.WithMaxContentLength(cfg.MaxArticleLen),
			scraper.WithUserAgent(creds.Reddit.UserAgent),
		)
		opts = append(opts, pipeline.WithScraper(&scraperAdapter{articleScraper}))
	}

	if cfg.DBPath != "" {
		db, err := storage.NewDB(cfg.DBPath)
		if err != nil {
			return nil, cleanup, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
		}
		cleanup = func() { db.Close() }
		opts = append(opts, pipeline.WithStore(&storageAdapter{db}))
		slog.Info("database initialized", "path", cfg.DBPath)
	}

	if cfg.TelegramChatID != 0 {
		if creds.TelegramToken == "" {
			slog.Warn("telegram_chat_id is set but the credentials have no telegram_token; reports disabled")
		} else {
			notifier, err := notify.NewTelegram(creds.TelegramToken, cfg.TelegramChatID, notify.WithTimeout(cfg.FetchTimeout()))
			if err != nil {
				cleanup()
				return nil, func() {}, err
			}
			opts = append(opts, pipeline.WithReporter(&reportAdapter{
				notifier: notifier,
				ranker:   ranker.NewRanker(0.5, 0.5),
			}))
			slog.Info("telegram reports enabled", "chat_id", cfg.TelegramChatID)
		}
	}

	return pipeline.NewRunner(&redditSource{redditClient}, driver, opts...), cleanup, nil
}

func redditOptions(cfg *config.Config) []reddit.Option {
	opts := []reddit.Option{reddit.WithTimeout(cfg.FetchTimeout())}
	if cfg.CommentLimit > 0 {
		opts = append(opts, reddit.WithCommentLimit(cfg.CommentLimit))
	}
	return opts
}

// inspect answers the read-only history queries against the run database.
func inspect(cfg *config.Config, history int, runID, mentions string) error {
	if cfg.DBPath == "" {
		return fmt.Errorf("db_path is not configured")
	}
	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	defer db.Close()

	ctx := context.Background()
	switch {
	case runID != "":
		return printRun(ctx, os.Stdout, db, runID)
	case mentions != "":
		return printMentions(ctx, os.Stdout, db, mentions)
	default:
		return printHistory(ctx, os.Stdout, db, history)
	}
}

func logSummary(result *pipeline.Result) {
	if result == nil {
		return
	}
	attrs := []any{
		"run_id", result.RunID,
		"status", result.Status,
		"cache_hit", result.CacheHit,
		"entries", humanize.Comma(int64(result.Entries)),
		"calls", result.Stats.Calls,
		"outages", result.Stats.Outages,
		"skipped", result.Stats.Skipped,
		"runtime", result.Elapsed.Round(time.Millisecond).String(),
	}
	if result.Dataset != nil {
		var names []string
		for _, e := range ranker.NewRanker(0.5, 0.5).Rank(result.Dataset, topEntityCount) {
			names = append(names, e.Name)
		}
		attrs = append(attrs, "top_entities", strings.Join(names, ", "))
	}
	if result.Err != nil {
		attrs = append(attrs, "error", result.Err)
		slog.Error("run summary", attrs...)
		return
	}
	slog.Info("run summary", attrs...)
}

// Adapter types to bridge between the clients and the pipeline interfaces

type redditSource struct {
	client *reddit.Client
}

func (r *redditSource) TopThreads(ctx context.Context, subreddit string, limit int) ([]pipeline.ThreadHandle, error) {
	threads, err := r.client.TopThreads(ctx, subreddit, limit)
	if err != nil {
		return nil, err
	}
	handles := make([]pipeline.ThreadHandle, len(threads))
	for i, t := range threads {
		handles[i] = &redditThread{t}
	}
	return handles, nil
}

type redditThread struct {
	*reddit.Thread
}

func (r *redditThread) Submission() *flatten.Submission {
	p := &r.Post
	return &flatten.Submission{
		ID:          p.ID,
		Title:       p.Title,
		Score:       p.Score,
		UpvoteRatio: p.UpvoteRatio,
		URL:         p.URL,
		Author:      p.AuthorName(),
		Selftext:    p.Selftext,
		NumComments: p.NumComments,
	}
}

func (r *redditThread) Comments() []flatten.RawComment {
	flat := r.FlatComments()
	raw := make([]flatten.RawComment, len(flat))
	for i, c := range flat {
		body := c.Body
		raw[i] = flatten.RawComment{
			ID:         c.ID,
			ParentID:   c.ParentID,
			Body:       &body,
			Score:      c.Score,
			Ups:        c.Ups,
			Downs:      c.Downs,
			Depth:      c.Depth,
			NumReports: c.NumReports,
		}
	}
	return raw
}

type scraperAdapter struct {
	scraper *scraper.Scraper
}

func (s *scraperAdapter) Scrape(ctx context.Context, url string) (string, error) {
	if !scraper.ShouldScrape(url) {
		return "", nil
	}
	return s.scraper.Scrape(ctx, url)
}

type storageAdapter struct {
	db *storage.DB
}

func (s *storageAdapter) RecordRun(ctx context.Context, run *pipeline.RunRecord) error {
	rec := &storage.Run{
		ID:             run.ID,
		Subreddit:      run.Subreddit,
		RequestedCount: run.RequestedCount,
		CacheHit:       run.CacheHit,
		Threads:        run.Threads,
		Entries:        run.Entries,
		Calls:          run.Stats.Calls,
		Outages:        run.Stats.Outages,
		Skipped:        run.Stats.Skipped,
		Elapsed:        run.Stats.Elapsed,
		Status:         run.Status,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
	}
	if run.Err != nil {
		rec.Error = run.Err.Error()
	}
	return s.db.RecordRun(ctx, rec)
}

func (s *storageAdapter) ExportDataset(ctx context.Context, ds *dataset.Dataset) error {
	return s.db.ExportDataset(ctx, ds)
}

type reportAdapter struct {
	notifier *notify.Notifier
	ranker   *ranker.Ranker
}

func (r *reportAdapter) Report(ctx context.Context, result *pipeline.Result) error {
	report := &notify.Report{
		RunID:      result.RunID,
		Subreddit:  result.Subreddit,
		Requested:  result.Requested,
		Threads:    result.Threads,
		Entries:    result.Entries,
		CacheHit:   result.CacheHit,
		Calls:      result.Stats.Calls,
		Outages:    result.Stats.Outages,
		Skipped:    result.Stats.Skipped,
		Elapsed:    result.Elapsed,
		Status:     result.Status,
		Err:        result.Err,
		OutputPath: result.OutputPath,
	}
	if result.Dataset != nil {
		report.TopEntities = r.ranker.Rank(result.Dataset, topEntityCount)
	}
	_, err := r.notifier.Notify(ctx, report)
	return err
}
