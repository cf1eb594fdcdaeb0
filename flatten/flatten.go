// Package flatten turns a submission and its fully expanded comment forest
// into a flat, id-keyed dataset.Thread.
package flatten

import (
	"errors"
	"fmt"

	"reddit-nlp/dataset"
	"reddit-nlp/textnorm"
)

var (
	// ErrNoSubmission is returned when the source has no root submission.
	ErrNoSubmission = errors.New("no submission")
	// ErrDuplicateComment is returned when the listing repeats a comment ID.
	ErrDuplicateComment = errors.New("duplicate comment id")
)

// Submission is the root post as read from the data source.
type Submission struct {
	ID          string
	Title       string
	Score       int
	UpvoteRatio float64
	URL         string
	// Author is nil when the account was deleted or suspended.
	Author      *string
	Selftext    string
	NumComments int
}

// RawComment is one entry of the source's pre-order comment listing.
type RawComment struct {
	ID       string
	ParentID string
	// Body is nil when the source has no body for the comment.
	Body       *string
	Score      int
	Ups        int
	Downs      int
	Depth      int
	NumReports *int
}

// Source is a thread whose placeholder stubs have already been expanded.
type Source interface {
	Submission() *Submission
	Comments() []RawComment
}

// Thread builds the flat record for src. Listing order is taken as given and
// recorded in each comment's Position.
func Thread(src Source) (*dataset.Thread, error) {
	sub := src.Submission()
	if sub == nil {
		return nil, ErrNoSubmission
	}

	thread := &dataset.Thread{
		ID:          sub.ID,
		Title:       textnorm.String(sub.Title),
		Score:       sub.Score,
		UpvoteRatio: sub.UpvoteRatio,
		URL:         sub.URL,
		Author:      author(sub),
		NumComments: sub.NumComments,
		Selftext:    textnorm.String(sub.Selftext),
		Comments:    make(map[string]*dataset.Comment),
	}

	for i, raw := range src.Comments() {
		if _, exists := thread.Comments[raw.ID]; exists {
			return nil, fmt.Errorf("thread %s: %w: %s", sub.ID, ErrDuplicateComment, raw.ID)
		}
		thread.Comments[raw.ID] = comment(raw, i)
	}

	return thread, nil
}

func comment(raw RawComment, position int) *dataset.Comment {
	body := ""
	if norm := textnorm.Normalize(raw.Body); norm != nil {
		body = *norm
	}

	reports := 0
	if raw.NumReports != nil {
		reports = *raw.NumReports
	}

	return &dataset.Comment{
		ID:         raw.ID,
		ParentID:   raw.ParentID,
		Body:       body,
		Score:      raw.Score,
		Ups:        raw.Ups,
		Downs:      raw.Downs,
		Depth:      raw.Depth,
		NumReports: reports,
		Position:   position,
	}
}

func author(sub *Submission) *string {
	if sub == nil || sub.Author == nil {
		return nil
	}
	return textnorm.Normalize(sub.Author)
}
