package geocode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paris15 = Centroid{Latitude: 48.84, Longitude: 2.29, Places: 1}

func TestCachedClient_MissesGoOutInOneBatch(t *testing.T) {
	next := &fakeClient{centroids: map[string]Centroid{
		"75015": paris15,
		"06000": {Latitude: 43.70, Longitude: 7.27, Places: 1},
	}}
	cache := &memCache{data: map[string]Centroid{"75001": {Latitude: 48.86, Longitude: 2.34}}}

	c := NewCachedClient(next, cache)
	got, err := c.Lookup(context.Background(), "FR", []string{"75015", "75001", "06000", "99999"})
	require.NoError(t, err)

	assert.Len(t, got, 3)
	require.Len(t, next.calls, 1)
	assert.Equal(t, []string{"06000", "75015", "99999"}, next.calls[0])
	assert.Contains(t, cache.data, "75015", "fresh centroids are written back")
	assert.Equal(t, 1, cache.puts)
}

func TestCachedClient_AllHits(t *testing.T) {
	next := &fakeClient{}
	cache := &memCache{data: map[string]Centroid{"75015": paris15}}

	got, err := NewCachedClient(next, cache).Lookup(context.Background(), "FR", []string{"75015"})
	require.NoError(t, err)
	assert.Equal(t, paris15, got["75015"])
	assert.Empty(t, next.calls)
}

func TestCachedClient_CacheReadFailureFallsThrough(t *testing.T) {
	next := &fakeClient{centroids: map[string]Centroid{"75015": paris15}}
	cache := &memCache{getErr: assert.AnError}

	got, err := NewCachedClient(next, cache).Lookup(context.Background(), "FR", []string{"75015"})
	require.NoError(t, err)
	assert.Contains(t, got, "75015")
}

func TestCachedClient_CacheWriteFailureIgnored(t *testing.T) {
	next := &fakeClient{centroids: map[string]Centroid{"75015": paris15}}
	cache := &memCache{putErr: assert.AnError}

	got, err := NewCachedClient(next, cache).Lookup(context.Background(), "FR", []string{"75015"})
	require.NoError(t, err)
	assert.Contains(t, got, "75015")
}

func TestCachedClient_LookupFailure(t *testing.T) {
	next := &fakeClient{err: assert.AnError}

	_, err := NewCachedClient(next, &memCache{}).Lookup(context.Background(), "FR", []string{"75015"})
	require.ErrorIs(t, err, assert.AnError)

	cache := &memCache{data: map[string]Centroid{"75001": paris15}}
	got, err := NewCachedClient(next, cache).Lookup(context.Background(), "FR", []string{"75001", "75015"})
	require.NoError(t, err, "cached hits are served when the lookup fails")
	assert.Len(t, got, 1)
}

func TestCachedClient_EmptyBatch(t *testing.T) {
	next := &fakeClient{}
	got, err := NewCachedClient(next, &memCache{}).Lookup(context.Background(), "FR", []string{" "})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, next.calls)
}
