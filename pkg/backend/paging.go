package backend

import (
	"context"
	"errors"
	"slices"
)

// MaxPages bounds how many pages a single walk reads.
const MaxPages = 50

var ErrTooManyPages = errors.New("backend: page limit reached")

// PageFunc fetches one 1-based page of a list endpoint.
type PageFunc[T any] func(ctx context.Context, page int) (*Page[T], error)

// Walk reads pages 1, 2, ... handing each page's results to visit, until the backend reports no
// next page or visit returns false.
func Walk[T any](ctx context.Context, fetch PageFunc[T], visit func([]T) bool) error {
	for page := 1; page <= MaxPages; page++ {
		p, err := fetch(ctx, page)
		if err != nil {
			return err
		}
		if !visit(p.Results) || p.Next == nil {
			return nil
		}
	}
	return ErrTooManyPages
}

// Tail returns the items of an oldest-first list for which newer is true, in list order. Pages are
// read from the last one backwards and reading stops at the first page holding an item that is not
// newer, so following a growing list costs two requests per call. At most MaxPages pages are read;
// a longer tail is cut to its newest part.
func Tail[T any](ctx context.Context, fetch PageFunc[T], newer func(T) bool) ([]T, error) {
	first, err := fetch(ctx, 1)
	if err != nil {
		return nil, err
	}
	if first.Next == nil || len(first.Results) == 0 {
		return keep(first.Results, newer), nil
	}

	size := len(first.Results)
	last := max((first.Count+size-1)/size, 2)

	var pages [][]T
	reachedOld := false
	for page := last; page >= 2 && len(pages) < MaxPages-1; page-- {
		p, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p.Results)
		if !slices.ContainsFunc(p.Results, func(v T) bool { return !newer(v) }) {
			continue
		}
		reachedOld = true
		break
	}
	if !reachedOld && len(pages) == last-1 {
		pages = append(pages, first.Results)
	}

	var out []T
	for i := len(pages) - 1; i >= 0; i-- {
		out = append(out, keep(pages[i], newer)...)
	}
	return out, nil
}

func keep[T any](in []T, pred func(T) bool) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}
