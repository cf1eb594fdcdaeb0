package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNeedsRebuild is matched by every error Load returns when the saved
// dataset cannot be reused.
var ErrNeedsRebuild = errors.New("dataset needs rebuild")

// MalformedCacheError reports a dataset file that exists but cannot be used.
type MalformedCacheError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedCacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed dataset %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed dataset %s: %s", e.Path, e.Reason)
}

func (e *MalformedCacheError) Unwrap() error { return e.Err }

// Is makes a malformed cache equivalent to a missing one.
func (e *MalformedCacheError) Is(target error) bool { return target == ErrNeedsRebuild }

// StaleCacheError reports a dataset built for a different request size.
type StaleCacheError struct {
	Path      string
	Persisted int
	Requested int
}

func (e *StaleCacheError) Error() string {
	return fmt.Sprintf("dataset %s was built for %d threads, %d requested", e.Path, e.Persisted, e.Requested)
}

func (e *StaleCacheError) Is(target error) bool { return target == ErrNeedsRebuild }

// header is decoded first so a missing freshness field can be told apart
// from a zero one.
type header struct {
	RequestedCount *int `json:"requestedCount"`
	EntryCount     *int `json:"entryCount"`
}

// Load returns the dataset saved at path when it was built for exactly
// requested threads. Any other outcome returns an error matching
// ErrNeedsRebuild; the old file is not merged into the rebuild.
func Load(path string, requested int) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNeedsRebuild, err)
		}
		return nil, &MalformedCacheError{Path: path, Reason: "read file", Err: err}
	}

	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, &MalformedCacheError{Path: path, Reason: "parse header", Err: err}
	}
	if h.RequestedCount == nil {
		return nil, &MalformedCacheError{Path: path, Reason: "missing requestedCount"}
	}
	if *h.RequestedCount != requested {
		return nil, &StaleCacheError{Path: path, Persisted: *h.RequestedCount, Requested: requested}
	}

	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, &MalformedCacheError{Path: path, Reason: "parse threads", Err: err}
	}
	if ds.Threads == nil {
		ds.Threads = make(map[string]*Thread)
	}
	for id, t := range ds.Threads {
		if t == nil {
			return nil, &MalformedCacheError{Path: path, Reason: fmt.Sprintf("thread %s is null", id)}
		}
		for cid, c := range t.Comments {
			if c == nil {
				return nil, &MalformedCacheError{Path: path, Reason: fmt.Sprintf("comment %s of thread %s is null", cid, id)}
			}
		}
	}
	ds.fillIDs()

	if h.EntryCount != nil && *h.EntryCount != ds.CountEntries() {
		return nil, &MalformedCacheError{
			Path:   path,
			Reason: fmt.Sprintf("entryCount %d does not match %d stored entries", *h.EntryCount, ds.CountEntries()),
		}
	}

	return &ds, nil
}
