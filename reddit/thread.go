package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

const (
	kindComment = "t1"
	kindPost    = "t3"
	kindMore    = "more"
)

// Post is a submission as returned by the listing endpoints.
type Post struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	NumComments int     `json:"num_comments"`
	IsSelf      bool    `json:"is_self"`
}

// AuthorName returns nil when the author account is gone.
func (p *Post) AuthorName() *string {
	if p == nil || p.Author == "" || p.Author == "[deleted]" {
		return nil
	}
	name := p.Author
	return &name
}

// Comment is a single comment with its loaded replies.
type Comment struct {
	ID         string
	Name       string
	ParentID   string
	Author     string
	Body       string
	Score      int
	Ups        int
	Downs      int
	Depth      int
	NumReports *int

	replies []*node
}

// more is a "load more comments" or "continue this thread" placeholder.
type more struct {
	ID       string
	ParentID string
	Children []string
	Count    int
	Depth    int
}

// node holds either a comment or a placeholder.
type node struct {
	comment *Comment
	more    *more
}

// Thread is a submission plus its comment forest.
type Thread struct {
	Post Post

	client *Client
	forest []*node
	loaded bool
}

// ExpandAllComments loads the comment tree and replaces every placeholder
// with the comments behind it, however deep, until none are left.
func (t *Thread) ExpandAllComments(ctx context.Context) error {
	if !t.loaded {
		if err := t.load(ctx); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	for {
		container, idx := findMore(&t.forest)
		if container == nil {
			return nil
		}
		stub := (*container)[idx].more
		key := stub.ID + "/" + stub.ParentID

		var replacement []*node
		if !seen[key] {
			seen[key] = true
			nodes, err := t.resolve(ctx, stub)
			if err != nil {
				return fmt.Errorf("expand %s in thread %s: %w", stub.ID, t.Post.ID, err)
			}
			replacement = nodes
		} else {
			slog.DebugContext(ctx, "dropping repeated placeholder", "thread", t.Post.ID, "more", stub.ID)
		}

		spliced := make([]*node, 0, len(*container)-1+len(replacement))
		spliced = append(spliced, (*container)[:idx]...)
		spliced = append(spliced, replacement...)
		spliced = append(spliced, (*container)[idx+1:]...)
		*container = spliced
	}
}

// FlatComments returns every loaded comment in pre-order: each comment is
// followed by its replies before its next sibling.
func (t *Thread) FlatComments() []*Comment {
	var out []*Comment
	var walk func(nodes []*node)
	walk = func(nodes []*node) {
		for _, n := range nodes {
			if n.comment == nil {
				continue
			}
			out = append(out, n.comment)
			walk(n.comment.replies)
		}
	}
	walk(t.forest)
	return out
}

func (t *Thread) load(ctx context.Context) error {
	query := url.Values{"limit": {fmt.Sprint(t.client.commentLimit)}}

	var listings []listing
	if err := t.client.get(ctx, "/comments/"+url.PathEscape(t.Post.ID), query, &listings); err != nil {
		return fmt.Errorf("fetch comments for %s: %w", t.Post.ID, err)
	}
	if len(listings) < 2 {
		return fmt.Errorf("fetch comments for %s: expected 2 listings, got %d", t.Post.ID, len(listings))
	}

	forest, err := parseNodes(listings[1].Data.Children)
	if err != nil {
		return fmt.Errorf("parse comments for %s: %w", t.Post.ID, err)
	}
	t.forest = forest
	t.loaded = true
	return nil
}

// resolve fetches the comments hidden behind a placeholder and returns them
// as nodes that belong where the placeholder was.
func (t *Thread) resolve(ctx context.Context, stub *more) ([]*node, error) {
	if len(stub.Children) == 0 {
		return t.continueThread(ctx, stub)
	}

	var things []thing
	for start := 0; start < len(stub.Children); start += maxMoreChildren {
		end := start + maxMoreChildren
		if end > len(stub.Children) {
			end = len(stub.Children)
		}

		query := url.Values{
			"api_type":       {"json"},
			"link_id":        {t.linkName()},
			"children":       {strings.Join(stub.Children[start:end], ",")},
			"limit_children": {"false"},
		}

		var resp moreChildrenResponse
		if err := t.client.get(ctx, "/api/morechildren", query, &resp); err != nil {
			return nil, err
		}
		if len(resp.JSON.Errors) > 0 {
			return nil, fmt.Errorf("morechildren: %v", resp.JSON.Errors)
		}
		things = append(things, resp.JSON.Data.Things...)
	}

	return attach(things)
}

// continueThread handles the "continue this thread" placeholder, which
// lists no children and needs the parent's subtree fetched directly.
func (t *Thread) continueThread(ctx context.Context, stub *more) ([]*node, error) {
	parent := strings.TrimPrefix(stub.ParentID, kindComment+"_")
	if parent == stub.ParentID {
		// Parent is the submission itself; nothing more to load.
		return nil, nil
	}

	query := url.Values{"comment": {parent}}
	var listings []listing
	if err := t.client.get(ctx, "/comments/"+url.PathEscape(t.Post.ID), query, &listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, fmt.Errorf("continue thread %s: expected 2 listings, got %d", parent, len(listings))
	}

	nodes, err := parseNodes(listings[1].Data.Children)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.comment != nil && n.comment.ID == parent {
			// The focused listing may count depth from the parent. The
			// parent sits one level above the placeholder.
			shiftDepth(n.comment.replies, stub.Depth-1-n.comment.Depth)
			return n.comment.replies, nil
		}
	}
	return nil, nil
}

func shiftDepth(nodes []*node, offset int) {
	if offset == 0 {
		return
	}
	for _, n := range nodes {
		if n.more != nil {
			n.more.Depth += offset
			continue
		}
		n.comment.Depth += offset
		shiftDepth(n.comment.replies, offset)
	}
}

func (t *Thread) linkName() string {
	if t.Post.Name != "" {
		return t.Post.Name
	}
	return kindPost + "_" + t.Post.ID
}

// attach arranges the flat morechildren result into a forest. Results reply
// either to the placeholder's parent, and take its place, or to a comment
// earlier in the same result.
func attach(things []thing) ([]*node, error) {
	var top []*node
	byName := make(map[string]*Comment)

	for _, th := range things {
		n, err := parseNode(th)
		if err != nil {
			return nil, err
		}
		if n == nil {
			continue
		}

		parent := ""
		if n.comment != nil {
			parent = n.comment.ParentID
			byName[n.comment.Name] = n.comment
		} else {
			parent = n.more.ParentID
		}

		if p, ok := byName[parent]; ok {
			p.replies = append(p.replies, n)
			continue
		}
		top = append(top, n)
	}
	return top, nil
}

// findMore returns the slice holding the first placeholder in pre-order
// and its index, or nil when the tree has none.
func findMore(nodes *[]*node) (*[]*node, int) {
	for i, n := range *nodes {
		if n.more != nil {
			return nodes, i
		}
		if n.comment != nil {
			if container, idx := findMore(&n.comment.replies); container != nil {
				return container, idx
			}
		}
	}
	return nil, 0
}

// Wire types

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type commentData struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	ParentID   string          `json:"parent_id"`
	Author     string          `json:"author"`
	Body       string          `json:"body"`
	Score      int             `json:"score"`
	Ups        int             `json:"ups"`
	Downs      int             `json:"downs"`
	Depth      int             `json:"depth"`
	NumReports *int            `json:"num_reports"`
	Replies    json.RawMessage `json:"replies"`
	// placeholder fields
	Children []string `json:"children"`
	Count    int      `json:"count"`
}

type moreChildrenResponse struct {
	JSON struct {
		Errors []json.RawMessage `json:"errors"`
		Data   struct {
			Things []thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

func parseNodes(things []thing) ([]*node, error) {
	nodes := make([]*node, 0, len(things))
	for _, th := range things {
		n, err := parseNode(th)
		if err != nil {
			return nil, err
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

func parseNode(th thing) (*node, error) {
	var d commentData
	switch th.Kind {
	case kindComment, kindMore:
		if err := json.Unmarshal(th.Data, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", th.Kind, err)
		}
	default:
		return nil, nil
	}

	if th.Kind == kindMore {
		return &node{more: &more{
			ID:       d.ID,
			ParentID: d.ParentID,
			Children: d.Children,
			Count:    d.Count,
			Depth:    d.Depth,
		}}, nil
	}

	c := &Comment{
		ID:         d.ID,
		Name:       d.Name,
		ParentID:   d.ParentID,
		Author:     d.Author,
		Body:       d.Body,
		Score:      d.Score,
		Ups:        d.Ups,
		Downs:      d.Downs,
		Depth:      d.Depth,
		NumReports: d.NumReports,
	}
	if c.Name == "" {
		c.Name = kindComment + "_" + c.ID
	}

	// replies is "" when there are none and a listing otherwise.
	if raw := bytes.TrimSpace(d.Replies); len(raw) > 0 && raw[0] == '{' {
		var l listing
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("decode replies of %s: %w", c.ID, err)
		}
		replies, err := parseNodes(l.Data.Children)
		if err != nil {
			return nil, err
		}
		c.replies = replies
	}
	return &node{comment: c}, nil
}
