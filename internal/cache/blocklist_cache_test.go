package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/demoody/missed-call-responder/internal/model"
	storagemock "github.com/demoody/missed-call-responder/internal/storage/mock"
	"github.com/demoody/missed-call-responder/pkg/logger"
)

func newTestCache(t *testing.T) (*BlockListCache, *storagemock.BlockListRepoMock) {
	t.Helper()
	logger.Log = zaptest.NewLogger(t)
	repo := new(storagemock.BlockListRepoMock)
	return NewBlockListCache(repo, 1000, 0.01), repo
}

func TestBlockListCache_NeverBlockedSkipsDatabase(t *testing.T) {
	cache, repo := newTestCache(t)

	blocked, err := cache.IsBlocked(context.Background(), "919876543210")
	require.NoError(t, err)
	assert.False(t, blocked)
	repo.AssertNotCalled(t, "IsBlocked", mock.Anything, mock.Anything)

	stats := cache.GetStats()
	assert.Equal(t, int64(1), stats.Skips)
	assert.Equal(t, int64(0), stats.Lookups)
}

func TestBlockListCache_BlockedNumberResolvesThroughDatabase(t *testing.T) {
	cache, repo := newTestCache(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	repo.On("Block", mock.Anything, "919876543210", "SPAM", now).Return(nil)
	repo.On("IsBlocked", mock.Anything, "919876543210").Return(true, nil)

	require.NoError(t, cache.Block(context.Background(), "919876543210", "SPAM", now))

	blocked, err := cache.IsBlocked(context.Background(), "919876543210")
	require.NoError(t, err)
	assert.True(t, blocked)
	repo.AssertExpectations(t)

	stats := cache.GetStats()
	assert.Equal(t, int64(1), stats.Lookups)
}

func TestBlockListCache_UnblockedNumberStillResolves(t *testing.T) {
	cache, repo := newTestCache(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	repo.On("Block", mock.Anything, "919876543210", "SPAM", now).Return(nil)
	repo.On("Unblock", mock.Anything, "919876543210").Return(nil)
	repo.On("IsBlocked", mock.Anything, "919876543210").Return(false, nil)

	require.NoError(t, cache.Block(context.Background(), "919876543210", "SPAM", now))
	require.NoError(t, cache.Unblock(context.Background(), "919876543210"))

	// The filter entry remains, so the check falls through to the database.
	blocked, err := cache.IsBlocked(context.Background(), "919876543210")
	require.NoError(t, err)
	assert.False(t, blocked)

	stats := cache.GetStats()
	assert.Equal(t, int64(1), stats.FalsePositives)
}

func TestBlockListCache_WarmUpSeedsFilter(t *testing.T) {
	cache, repo := newTestCache(t)

	entries := []model.BlockedNumber{
		{PhoneNumber: "919876543210", Reason: "SPAM"},
		{PhoneNumber: "919876543211", Reason: model.BlockReasonOptOut},
	}
	repo.On("List", mock.Anything, warmUpPageSize, 0).Return(entries, nil)
	repo.On("IsBlocked", mock.Anything, "919876543210").Return(true, nil)

	require.NoError(t, cache.WarmUp(context.Background()))

	blocked, err := cache.IsBlocked(context.Background(), "919876543210")
	require.NoError(t, err)
	assert.True(t, blocked)
	repo.AssertExpectations(t)
}

func TestBlockListCache_WarmUpPropagatesError(t *testing.T) {
	cache, repo := newTestCache(t)

	repo.On("List", mock.Anything, warmUpPageSize, 0).Return(nil, assert.AnError)

	err := cache.WarmUp(context.Background())
	assert.Error(t, err)
}
