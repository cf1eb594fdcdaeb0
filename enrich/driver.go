// Package enrich scores every text unit of a dataset with an external
// entity-sentiment service, one unit at a time.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"reddit-nlp/dataset"
)

// Analyzer is the external entity-sentiment service.
type Analyzer interface {
	AnalyzeEntitySentiment(ctx context.Context, text string) (dataset.EntityList, error)
}

// UnitKind identifies which field of a thread a unit fills.
type UnitKind int

const (
	UnitSelftext UnitKind = iota
	UnitComment
	UnitAggregate
)

func (k UnitKind) String() string {
	switch k {
	case UnitSelftext:
		return "selftext"
	case UnitComment:
		return "comment"
	case UnitAggregate:
		return "aggregate"
	default:
		return "unknown"
	}
}

// Unit is one text sent to the service.
type Unit struct {
	Kind      UnitKind
	ThreadID  string
	CommentID string
}

func (u Unit) String() string {
	if u.Kind == UnitComment {
		return fmt.Sprintf("%s %s/%s", u.Kind, u.ThreadID, u.CommentID)
	}
	return fmt.Sprintf("%s %s", u.Kind, u.ThreadID)
}

// RunStats counts the work done by one Enrich call.
type RunStats struct {
	Calls   int
	Outages int
	Skipped int
	Elapsed time.Duration
}

// Driver walks a dataset and fills in entity fields.
type Driver struct {
	analyzer  Analyzer
	policy    RetryPolicy
	clock     clockwork.Clock
	transient func(error) bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(d *Driver) {
		d.policy = p
	}
}

// WithClock sets the clock used for pauses and latency.
func WithClock(c clockwork.Clock) Option {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithTransientClassifier overrides how errors are classified as retryable.
func WithTransientClassifier(fn func(error) bool) Option {
	return func(d *Driver) {
		d.transient = fn
	}
}

// NewDriver creates a driver for the given service.
func NewDriver(analyzer Analyzer, opts ...Option) *Driver {
	d := &Driver{
		analyzer:  analyzer,
		policy:    DefaultRetryPolicy(),
		clock:     clockwork.NewRealClock(),
		transient: IsTransient,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enrich scores every unit of ds in place. Per thread the order is selftext,
// then each comment in flattening order, then the aggregate of all of them.
// Already scored units are scored again.
//
// On a non-transient failure or cancellation it returns a *FatalError; the
// dataset keeps everything assigned so far and the caller should save it.
func (d *Driver) Enrich(ctx context.Context, ds *dataset.Dataset) (RunStats, error) {
	var stats RunStats
	start := d.clock.Now()

	for _, thread := range ds.OrderedThreads() {
		if err := d.enrichThread(ctx, thread, &stats); err != nil {
			stats.Elapsed = d.clock.Since(start)
			return stats, err
		}
	}

	stats.Elapsed = d.clock.Since(start)
	return stats, nil
}

func (d *Driver) enrichThread(ctx context.Context, thread *dataset.Thread, stats *RunStats) error {
	entities, err := d.score(ctx, Unit{Kind: UnitSelftext, ThreadID: thread.ID}, thread.Selftext, stats)
	if err != nil {
		return err
	}
	thread.Entities = entities

	comments := thread.OrderedComments()
	for _, c := range comments {
		unit := Unit{Kind: UnitComment, ThreadID: thread.ID, CommentID: c.ID}
		entities, err := d.score(ctx, unit, c.Body, stats)
		if err != nil {
			return err
		}
		c.Entities = entities
	}

	// Every body is known at this point; the aggregate goes last.
	aggregate := thread.AggregateText()
	entities, err = d.score(ctx, Unit{Kind: UnitAggregate, ThreadID: thread.ID}, aggregate, stats)
	if err != nil {
		return err
	}
	thread.AggregateEntities = entities
	return nil
}

// score runs the state machine for a single unit: call, and on a transient
// failure pause and call again.
func (d *Driver) score(ctx context.Context, unit Unit, text string, stats *RunStats) (dataset.EntityList, error) {
	if strings.TrimSpace(text) == "" {
		stats.Skipped++
		slog.DebugContext(ctx, "skipping blank unit", "unit", unit.String())
		return dataset.EntityList{}, nil
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &FatalError{Unit: unit, Err: err}
		}

		callStart := d.clock.Now()
		entities, err := d.analyzer.AnalyzeEntitySentiment(ctx, text)
		if err == nil {
			stats.Calls++
			slog.InfoContext(ctx, "called NLP service",
				"unit", unit.String(),
				"calls", stats.Calls,
				"latency", d.clock.Since(callStart).Round(time.Millisecond).String(),
				"entities", len(entities),
			)
			if entities == nil {
				entities = dataset.EntityList{}
			}
			return entities, nil
		}

		if ctx.Err() != nil || !d.transient(err) {
			return nil, &FatalError{Unit: unit, Err: err}
		}

		stats.Outages++
		if d.policy.exhausted(attempt) {
			return nil, &FatalError{Unit: unit, Err: fmt.Errorf("gave up after %d attempts: %w", attempt, err)}
		}

		wait := d.policy.wait(attempt)
		slog.WarnContext(ctx, "NLP service unavailable, retrying",
			"unit", unit.String(),
			"outages", stats.Outages,
			"wait", wait.String(),
			"error", err,
		)
		if d.policy.OnPause != nil {
			d.policy.OnPause(attempt, wait, err)
		}
		if err := pause(ctx, d.clock, wait); err != nil {
			return nil, &FatalError{Unit: unit, Err: err}
		}
	}
}
