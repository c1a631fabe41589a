// Package parallel runs independent per-record work across a bounded set of
// goroutines.
package parallel

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is used when a caller passes a non-positive limit.
const DefaultLimit = 8

// ItemError reports a failure for the item at Index.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// Map applies fn to every item using at most limit goroutines. Results keep
// input order. Items whose fn returns an error or panics are left out of the
// results and reported in the error slice; they never stop the other items.
func Map[T, R any](items []T, limit int, fn func(T) (R, error)) ([]R, []ItemError) {
	if len(items) == 0 {
		return []R{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(limit)

	for i := range items {
		i := i
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			results[i], errs[i] = fn(items[i])
			return nil
		})
	}
	_ = g.Wait()

	out := make([]R, 0, len(items))
	var failed []ItemError
	for i := range items {
		if errs[i] != nil {
			failed = append(failed, ItemError{Index: i, Err: errs[i]})
			continue
		}
		out = append(out, results[i])
	}
	return out, failed
}
