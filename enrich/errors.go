package enrich

import (
	"errors"
	"fmt"
)

// FatalError aborts an enrichment run. Entities assigned before the failing
// unit are left in place.
type FatalError struct {
	Unit Unit
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("enrich %s: %v", e.Unit, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// transient is implemented by service errors that may be retried.
type transient interface {
	Transient() bool
}

// IsTransient reports whether err, or any error it wraps, is a retryable
// service failure.
func IsTransient(err error) bool {
	var t transient
	return errors.As(err, &t) && t.Transient()
}
