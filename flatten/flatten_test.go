package flatten

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	submission *Submission
	comments   []RawComment
}

func (f *fakeSource) Submission() *Submission { return f.submission }
func (f *fakeSource) Comments() []RawComment  { return f.comments }

func ptr[T any](v T) *T { return &v }

func TestThreadFields(t *testing.T) {
	src := &fakeSource{
		submission: &Submission{
			ID:          "abc",
			Title:       "Café news",
			Score:       42,
			UpvoteRatio: 0.87,
			URL:         "https://example.com",
			Author:      ptr("jöhn"),
			Selftext:    "body ✓",
			NumComments: 1,
		},
		comments: []RawComment{
			{ID: "c1", ParentID: "t3_abc", Body: ptr("naïve take"), Score: 5, Ups: 6, Downs: 1, Depth: 0, NumReports: ptr(2)},
		},
	}

	thread, err := Thread(src)
	require.NoError(t, err)

	assert.Equal(t, "abc", thread.ID)
	assert.Equal(t, "Cafe news", thread.Title)
	assert.Equal(t, 42, thread.Score)
	assert.Equal(t, 0.87, thread.UpvoteRatio)
	assert.Equal(t, "https://example.com", thread.URL)
	require.NotNil(t, thread.Author)
	assert.Equal(t, "john", *thread.Author)
	assert.Equal(t, "body ", thread.Selftext)
	assert.Equal(t, 1, thread.NumComments)
	assert.Nil(t, thread.Entities)
	assert.Nil(t, thread.AggregateEntities)

	require.Len(t, thread.Comments, 1)
	c := thread.Comments["c1"]
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "t3_abc", c.ParentID)
	assert.Equal(t, "naive take", c.Body)
	assert.Equal(t, 5, c.Score)
	assert.Equal(t, 6, c.Ups)
	assert.Equal(t, 1, c.Downs)
	assert.Equal(t, 0, c.Depth)
	assert.Equal(t, 2, c.NumReports)
	assert.Equal(t, 0, c.Position)
}

func TestThreadCommentCount(t *testing.T) {
	for _, k := range []int{0, 1, 5, 250} {
		t.Run(fmt.Sprintf("%d comments", k), func(t *testing.T) {
			src := &fakeSource{submission: &Submission{ID: "s"}}
			for i := 0; i < k; i++ {
				src.comments = append(src.comments, RawComment{ID: fmt.Sprintf("c%d", i), Body: ptr("x"), Depth: i % 3})
			}

			thread, err := Thread(src)
			require.NoError(t, err)
			require.NotNil(t, thread.Comments)
			assert.Len(t, thread.Comments, k)

			for i, c := range thread.OrderedComments() {
				assert.Equal(t, fmt.Sprintf("c%d", i), c.ID)
				assert.Equal(t, i, c.Position)
			}
		})
	}
}

func TestThreadDeletedAuthor(t *testing.T) {
	thread, err := Thread(&fakeSource{submission: &Submission{ID: "s", Author: nil}})
	require.NoError(t, err)
	assert.Nil(t, thread.Author)
}

func TestThreadEmptySelftextStaysEmpty(t *testing.T) {
	thread, err := Thread(&fakeSource{submission: &Submission{ID: "s", Selftext: ""}})
	require.NoError(t, err)
	assert.Equal(t, "", thread.Selftext)
}

func TestThreadMissingBodyAndReports(t *testing.T) {
	src := &fakeSource{
		submission: &Submission{ID: "s"},
		comments:   []RawComment{{ID: "c1", Body: nil, NumReports: nil}},
	}
	thread, err := Thread(src)
	require.NoError(t, err)
	assert.Equal(t, "", thread.Comments["c1"].Body)
	assert.Equal(t, 0, thread.Comments["c1"].NumReports)
}

func TestThreadNoSubmission(t *testing.T) {
	_, err := Thread(&fakeSource{})
	assert.ErrorIs(t, err, ErrNoSubmission)
}

func TestThreadDuplicateComment(t *testing.T) {
	src := &fakeSource{
		submission: &Submission{ID: "s"},
		comments:   []RawComment{{ID: "c1"}, {ID: "c1"}},
	}
	_, err := Thread(src)
	assert.ErrorIs(t, err, ErrDuplicateComment)
}
