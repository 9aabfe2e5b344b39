package bulk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigagent/docrouter-go/internal/docrouter"
)

func TestEnumeratePages(t *testing.T) {
	tests := []struct {
		name          string
		total         int
		pageSize      int
		expectedCalls int
	}{
		{name: "empty result set", total: 0, pageSize: 100, expectedCalls: 1},
		{name: "single short page", total: 42, pageSize: 100, expectedCalls: 1},
		{name: "several pages with short tail", total: 250, pageSize: 100, expectedCalls: 3},
		{name: "exact multiple costs one extra request", total: 200, pageSize: 100, expectedCalls: 3},
		{name: "exactly one full page", total: 100, pageSize: 100, expectedCalls: 2},
		{name: "small page size", total: 7, pageSize: 3, expectedCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]int, tt.total)
			for i := range items {
				items[i] = i
			}

			calls := 0
			got, err := EnumeratePages(context.Background(), tt.pageSize, func(_ context.Context, skip, limit int) ([]int, error) {
				calls++
				assert.Equal(t, tt.pageSize, limit)
				assert.Equal(t, (calls-1)*tt.pageSize, skip)
				return pageOf(items, docrouter.ListParams{Skip: skip, Limit: limit}), nil
			})

			require.NoError(t, err)
			assert.Equal(t, tt.expectedCalls, calls)
			require.Len(t, got, tt.total)
			for i, v := range got {
				assert.Equal(t, i, v, "enumeration must preserve page order")
			}
		})
	}
}

func TestEnumeratePagesErrorAborts(t *testing.T) {
	pageErr := errors.New("backend unavailable")
	calls := 0
	got, err := EnumeratePages(context.Background(), 10, func(_ context.Context, skip, _ int) ([]int, error) {
		calls++
		if skip >= 10 {
			return nil, pageErr
		}
		return make([]int, 10), nil
	})

	require.ErrorIs(t, err, pageErr)
	assert.Nil(t, got, "no partial results on error")
	assert.Equal(t, 2, calls)
}

func TestEnumeratePagesContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	_, err := EnumeratePages(ctx, 10, func(_ context.Context, _, _ int) ([]int, error) {
		cancel()
		return make([]int, 10), nil
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestEnumeratePagesRejectsBadPageSize(t *testing.T) {
	_, err := EnumeratePages(context.Background(), 0, func(_ context.Context, _, _ int) ([]int, error) {
		t.Fatal("fetch must not be called")
		return nil, nil
	})
	require.Error(t, err)
}
