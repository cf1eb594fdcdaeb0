// Package dataset holds the persisted thread dataset: the record types, the
// freshness check used to decide whether a saved dataset can be reused, and
// the snapshot writer.
//
// Entity fields that were never filled are left out of the file. A unit that
// was enriched but yielded no entities is written as an empty list.
package dataset

import (
	"sort"
	"strings"
	"time"
)

// Dataset is the top-level persisted object.
type Dataset struct {
	RequestedCount int                `json:"requestedCount"`
	Subreddit      string             `json:"subreddit,omitempty"`
	EntryCount     int                `json:"entryCount"`
	FetchedAt      time.Time          `json:"fetchedAt"`
	Threads        map[string]*Thread `json:"threads"`
}

// Thread is one root submission and its flattened comments.
type Thread struct {
	ID                string              `json:"-"`
	Title             string              `json:"title"`
	Score             int                 `json:"score"`
	UpvoteRatio       float64             `json:"upvoteRatio"`
	URL               string              `json:"url"`
	Author            *string             `json:"author"`
	NumComments       int                 `json:"numComments"`
	Selftext          string              `json:"selftext"`
	Rank              int                 `json:"rank"`
	ArticleText       *string             `json:"articleText,omitempty"`
	Comments          map[string]*Comment `json:"comments"`
	Entities          EntityList          `json:"entities,omitzero"`
	AggregateEntities EntityList          `json:"aggregateEntities,omitzero"`
}

// Comment is one flattened comment. The tree is not kept; Depth and
// Position carry the shape as data and ParentID the provenance.
type Comment struct {
	ID         string     `json:"-"`
	ParentID   string     `json:"parentId,omitempty"`
	Body       string     `json:"body"`
	Score      int        `json:"score"`
	Ups        int        `json:"ups"`
	Downs      int        `json:"downs"`
	Depth      int        `json:"depth"`
	NumReports int        `json:"numReports"`
	Position   int        `json:"position"`
	Entities   EntityList `json:"entities,omitzero"`
}

// New creates an empty dataset for the given request size.
func New(subreddit string, requestedCount int) *Dataset {
	return &Dataset{
		RequestedCount: requestedCount,
		Subreddit:      subreddit,
		FetchedAt:      time.Now().UTC(),
		Threads:        make(map[string]*Thread),
	}
}

// AddThread stores t under its ID and updates the entry tally.
func (d *Dataset) AddThread(t *Thread) {
	if d.Threads == nil {
		d.Threads = make(map[string]*Thread)
	}
	if old, ok := d.Threads[t.ID]; ok {
		d.EntryCount -= 1 + len(old.Comments)
	}
	d.Threads[t.ID] = t
	d.EntryCount += 1 + len(t.Comments)
}

// CountEntries returns the number of threads plus comments.
func (d *Dataset) CountEntries() int {
	n := 0
	for _, t := range d.Threads {
		n += 1 + len(t.Comments)
	}
	return n
}

// OrderedThreads returns the threads in listing order.
func (d *Dataset) OrderedThreads() []*Thread {
	threads := make([]*Thread, 0, len(d.Threads))
	for _, t := range d.Threads {
		threads = append(threads, t)
	}
	sort.Slice(threads, func(i, j int) bool {
		if threads[i].Rank != threads[j].Rank {
			return threads[i].Rank < threads[j].Rank
		}
		return threads[i].ID < threads[j].ID
	})
	return threads
}

// OrderedComments returns the comments in flattening order.
func (t *Thread) OrderedComments() []*Comment {
	comments := make([]*Comment, 0, len(t.Comments))
	for _, c := range t.Comments {
		comments = append(comments, c)
	}
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].Position != comments[j].Position {
			return comments[i].Position < comments[j].Position
		}
		return comments[i].ID < comments[j].ID
	})
	return comments
}

// AggregateText joins the selftext and every comment body, in flattening
// order, with newlines.
func (t *Thread) AggregateText() string {
	comments := t.OrderedComments()
	parts := make([]string, 0, len(comments)+1)
	parts = append(parts, t.Selftext)
	for _, c := range comments {
		parts = append(parts, c.Body)
	}
	return strings.Join(parts, "\n")
}

// fillIDs copies map keys into the records after decoding.
func (d *Dataset) fillIDs() {
	for id, t := range d.Threads {
		if t == nil {
			continue
		}
		t.ID = id
		if t.Comments == nil {
			t.Comments = make(map[string]*Comment)
		}
		for cid, c := range t.Comments {
			if c != nil {
				c.ID = cid
			}
		}
	}
}
