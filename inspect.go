package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"reddit-nlp/storage"
)

// printHistory writes the most recent runs, newest first.
func printHistory(ctx context.Context, w io.Writer, db *storage.DB, limit int) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}
	for _, run := range runs {
		writeRunLine(w, run)
	}
	return nil
}

// printRun writes one run in detail.
func printRun(ctx context.Context, w io.Writer, db *storage.DB, id string) error {
	run, err := db.GetRun(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "run:       %s\n", run.ID)
	fmt.Fprintf(w, "status:    %s\n", run.Status)
	fmt.Fprintf(w, "subreddit: r/%s (%d requested, cache hit: %t)\n", run.Subreddit, run.RequestedCount, run.CacheHit)
	fmt.Fprintf(w, "entries:   %s in %d threads\n", humanize.Comma(int64(run.Entries)), run.Threads)
	fmt.Fprintf(w, "calls:     %s (outages %d, skipped %d)\n", humanize.Comma(int64(run.Calls)), run.Outages, run.Skipped)
	fmt.Fprintf(w, "started:   %s\n", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "finished:  %s (%s)\n", run.FinishedAt.Format(time.RFC3339), run.Elapsed.Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(w, "error:     %s\n", run.Error)
	}
	return nil
}

// printMentions writes every exported occurrence of an entity.
func printMentions(ctx context.Context, w io.Writer, db *storage.DB, name string) error {
	mentions, err := db.EntityMentions(ctx, name)
	if err != nil {
		return err
	}
	if len(mentions) == 0 {
		fmt.Fprintf(w, "no mentions of %q\n", name)
		return nil
	}
	for _, m := range mentions {
		where := m.ThreadID + " " + m.Unit
		if m.CommentID != "" {
			where += " " + m.CommentID
		}
		fmt.Fprintf(w, "%-32s %-10s salience %.3f sentiment %+.2f (magnitude %.2f)\n",
			where, m.Type, m.Salience, m.SentimentScore, m.SentimentMagnitude)
	}
	return nil
}

func writeRunLine(w io.Writer, run *storage.Run) {
	hit := ""
	if run.CacheHit {
		hit = " cached"
	}
	fmt.Fprintf(w, "%s  %-9s r/%s n=%d%s  entries=%s calls=%s outages=%d  %s\n",
		run.ID, run.Status, run.Subreddit, run.RequestedCount, hit,
		humanize.Comma(int64(run.Entries)), humanize.Comma(int64(run.Calls)), run.Outages,
		humanize.Time(run.StartedAt))
}
