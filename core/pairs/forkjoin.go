package pairs

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultParallelism is the number of pieces a parallel traversal aims for.
func DefaultParallelism() int {
	return runtime.GOMAXPROCS(0)
}

// Split bisects src into at most max sources covering the same pairs in the
// same overall order. A source that cannot split stays whole, so the result
// may hold fewer pieces than requested; for max < 2 or an unsplittable src
// it is just [src].
func Split(src Source, max int) []Source {
	subs := []Source{src}
	for len(subs) < max {
		progressed := false
		next := make([]Source, 0, len(subs)*2)
		for i, s := range subs {
			// +1: splitting one source grows the total piece count by one
			if len(next)+(len(subs)-i)+1 <= max {
				if prefix := s.TrySplit(); prefix != nil {
					next = append(next, prefix, s)
					progressed = true
					continue
				}
			}
			next = append(next, s)
		}
		subs = next
		if !progressed {
			break
		}
	}
	return subs
}

// Traverse runs fn once per sub-source, each on its own goroutine, and
// waits for all of them. part is the sub-source's position in split order,
// so callers can reassemble ordered results. The first error is returned;
// traversal has no cancellation, the remaining goroutines run to completion.
func Traverse(subs []Source, fn func(part int, sub Source) error) error {
	if len(subs) == 1 {
		return fn(0, subs[0])
	}
	var g errgroup.Group
	for i, sub := range subs {
		g.Go(func() error {
			return fn(i, sub)
		})
	}
	return g.Wait()
}
