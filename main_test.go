package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reddit-nlp/config"
	"reddit-nlp/dataset"
	"reddit-nlp/enrich"
	"reddit-nlp/pipeline"
	"reddit-nlp/storage"
)

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStorageAdapterRecordsRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)

	adapter := &storageAdapter{db}
	require.NoError(t, adapter.RecordRun(ctx, &pipeline.RunRecord{
		ID:             "run-1",
		Subreddit:      "golang",
		RequestedCount: 3,
		Threads:        3,
		Entries:        9,
		Stats:          enrich.RunStats{Calls: 12, Outages: 2, Skipped: 1, Elapsed: time.Minute},
		Status:         pipeline.StatusFailed,
		Err:            errors.New("permission denied"),
		StartedAt:      started,
		FinishedAt:     &finished,
	}))

	run, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "golang", run.Subreddit)
	assert.Equal(t, 12, run.Calls)
	assert.Equal(t, 2, run.Outages)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, pipeline.StatusFailed, run.Status)
	assert.Equal(t, "permission denied", run.Error)
}

func TestPrintHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, printHistory(ctx, &buf, db, 5))
	assert.Equal(t, "no runs recorded\n", buf.String())

	now := time.Now().UTC()
	require.NoError(t, db.RecordRun(ctx, &storage.Run{ID: "older", Subreddit: "news", RequestedCount: 10,
		Entries: 1234, Calls: 1300, Status: storage.RunSucceeded, StartedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, db.RecordRun(ctx, &storage.Run{ID: "newer", Subreddit: "news", RequestedCount: 10,
		CacheHit: true, Status: storage.RunRunning, StartedAt: now.Add(-time.Minute)}))

	buf.Reset()
	require.NoError(t, printHistory(ctx, &buf, db, 5))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "newer"))
	assert.Contains(t, lines[0], "cached")
	assert.True(t, strings.HasPrefix(lines[1], "older"))
	assert.Contains(t, lines[1], "entries=1,234")
	assert.Contains(t, lines[1], "2 hours ago")
}

func TestPrintRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Minute)
	require.NoError(t, db.RecordRun(ctx, &storage.Run{
		ID: "run-1", Subreddit: "golang", RequestedCount: 3, Threads: 3, Entries: 9,
		Calls: 12, Outages: 1, Elapsed: 2 * time.Minute, Status: storage.RunCancelled,
		Error: "context canceled", StartedAt: started, FinishedAt: &finished,
	}))

	var buf bytes.Buffer
	require.NoError(t, printRun(ctx, &buf, db, "run-1"))
	out := buf.String()
	assert.Contains(t, out, "status:    cancelled")
	assert.Contains(t, out, "r/golang (3 requested, cache hit: false)")
	assert.Contains(t, out, "(outages 1, skipped 0)")
	assert.Contains(t, out, "(2m0s)")
	assert.Contains(t, out, "error:     context canceled")

	err := printRun(ctx, &buf, db, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing not found")
}

func TestPrintMentions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ds := dataset.New("golang", 1)
	ds.AddThread(&dataset.Thread{
		ID:       "a",
		Selftext: "Go",
		Entities: dataset.EntityList{{Type: "OTHER", Name: "Go", Salience: 1, SentimentScore: 0.5, SentimentMagnitude: 0.5}},
		Comments: map[string]*dataset.Comment{
			"c1": {ID: "c1", Body: "Go again",
				Entities: dataset.EntityList{{Type: "OTHER", Name: "Go", Salience: 0.4, SentimentScore: -0.25, SentimentMagnitude: 0.5}}},
		},
	})
	require.NoError(t, db.ExportDataset(ctx, ds))

	var buf bytes.Buffer
	require.NoError(t, printMentions(ctx, &buf, db, "Go"))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "a selftext"))
	assert.Contains(t, lines[0], "sentiment +0.50")
	assert.True(t, strings.HasPrefix(lines[1], "a comment c1"))
	assert.Contains(t, lines[1], "sentiment -0.25")

	buf.Reset()
	require.NoError(t, printMentions(ctx, &buf, db, "Rust"))
	assert.Equal(t, "no mentions of \"Rust\"\n", buf.String())
}

func TestInspectRequiresDatabase(t *testing.T) {
	err := inspect(&config.Config{}, 5, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db_path")
}

func TestRedditOptions(t *testing.T) {
	assert.Len(t, redditOptions(&config.Config{FetchTimeoutSecs: 5}), 1)
	assert.Len(t, redditOptions(&config.Config{FetchTimeoutSecs: 5, CommentLimit: 100}), 2)
}
