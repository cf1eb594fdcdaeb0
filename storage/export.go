package storage

import (
	"context"
	"database/sql"
	"fmt"

	"reddit-nlp/dataset"
)

// Entity units.
const (
	UnitSelftext  = "selftext"
	UnitComment   = "comment"
	UnitAggregate = "aggregate"
)

// ExportDataset replaces the threads, comments and entities tables with the
// contents of ds in a single transaction.
func (db *DB) ExportDataset(ctx context.Context, ds *dataset.Dataset) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"entities", "comments", "threads"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	threadStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO threads (id, rank, title, score, upvote_ratio, url, author, num_comments, selftext, article_text)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare threads: %w", err)
	}
	defer threadStmt.Close()

	commentStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO comments (id, thread_id, parent_id, position, depth, body, score, ups, downs, num_reports)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare comments: %w", err)
	}
	defer commentStmt.Close()

	entityStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO entities (thread_id, comment_id, unit, ord, type, name, salience, sentiment_score, sentiment_magnitude)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entities: %w", err)
	}
	defer entityStmt.Close()

	insertEntities := func(threadID string, commentID sql.NullString, unit string, list dataset.EntityList) error {
		for i, e := range list {
			if _, err := entityStmt.ExecContext(ctx,
				threadID, commentID, unit, i,
				e.Type, e.Name, e.Salience, e.SentimentScore, e.SentimentMagnitude,
			); err != nil {
				return fmt.Errorf("insert %s entity for %s: %w", unit, threadID, err)
			}
		}
		return nil
	}

	for _, t := range ds.OrderedThreads() {
		if _, err := threadStmt.ExecContext(ctx,
			t.ID, t.Rank, t.Title, t.Score, t.UpvoteRatio, t.URL,
			t.Author, t.NumComments, t.Selftext, t.ArticleText,
		); err != nil {
			return fmt.Errorf("insert thread %s: %w", t.ID, err)
		}
		if err := insertEntities(t.ID, sql.NullString{}, UnitSelftext, t.Entities); err != nil {
			return err
		}

		for _, c := range t.OrderedComments() {
			var parent sql.NullString
			if c.ParentID != "" {
				parent = sql.NullString{String: c.ParentID, Valid: true}
			}
			if _, err := commentStmt.ExecContext(ctx,
				c.ID, t.ID, parent, c.Position, c.Depth, c.Body,
				c.Score, c.Ups, c.Downs, c.NumReports,
			); err != nil {
				return fmt.Errorf("insert comment %s: %w", c.ID, err)
			}
			commentID := sql.NullString{String: c.ID, Valid: true}
			if err := insertEntities(t.ID, commentID, UnitComment, c.Entities); err != nil {
				return err
			}
		}

		if err := insertEntities(t.ID, sql.NullString{}, UnitAggregate, t.AggregateEntities); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}

// EntityMention is one entity occurrence read back from the export.
type EntityMention struct {
	ThreadID           string
	CommentID          string
	Unit               string
	Type               string
	Name               string
	Salience           float64
	SentimentScore     float64
	SentimentMagnitude float64
}

// EntityMentions returns every exported occurrence of the named entity in
// thread rank and comment position order.
func (db *DB) EntityMentions(ctx context.Context, name string) ([]EntityMention, error) {
	query := `
	SELECT e.thread_id, e.comment_id, e.unit, e.type, e.name, e.salience, e.sentiment_score, e.sentiment_magnitude
	FROM entities e
	JOIN threads t ON t.id = e.thread_id
	LEFT JOIN comments c ON c.id = e.comment_id
	WHERE e.name = ?
	ORDER BY t.rank, CASE e.unit WHEN 'selftext' THEN 0 WHEN 'comment' THEN 1 ELSE 2 END, c.position, e.ord
	`
	rows, err := db.conn.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("query mentions of %q: %w", name, err)
	}
	defer rows.Close()

	var mentions []EntityMention
	for rows.Next() {
		var m EntityMention
		var commentID sql.NullString
		if err := rows.Scan(&m.ThreadID, &commentID, &m.Unit, &m.Type, &m.Name,
			&m.Salience, &m.SentimentScore, &m.SentimentMagnitude); err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		m.CommentID = commentID.String
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}
