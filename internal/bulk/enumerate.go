package bulk

import (
	"context"
	"fmt"
)

// PageFunc fetches one page of items at the given offset. Implementations
// wrap a backend list call with fixed filters.
type PageFunc[T any] func(ctx context.Context, skip, limit int) ([]T, error)

// EnumeratePages repeatedly fetches pages of size pageSize at increasing
// offsets and concatenates the results. Enumeration stops when a page comes
// back shorter than pageSize; no server-reported total is trusted for loop
// termination, so a result set that is an exact multiple of pageSize costs
// one extra (empty) page request. Any page error aborts the enumeration and
// propagates; no partial results are returned.
func EnumeratePages[T any](ctx context.Context, pageSize int, fetch PageFunc[T]) ([]T, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	var all []T
	skip := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := fetch(ctx, skip, pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetching page at offset %d: %w", skip, err)
		}

		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		skip += pageSize
	}
}
