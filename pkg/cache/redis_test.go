package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockCache struct {
	mock.Mock
	data map[string]interface{}
}

func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string]interface{}),
	}
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	if args.Error(0) == nil {
		m.data[key] = value
	}
	return args.Error(0)
}

func (m *MockCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	if args.Error(0) == nil {
		delete(m.data, key)
	}
	return args.Error(0)
}

func (m *MockCache) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestCache_SetAndDelete(t *testing.T) {
	mockCache := NewMockCache()
	ctx := context.Background()
	key := ReportCacheKey("abc123")

	mockCache.On("Set", ctx, key, "report").Return(nil)
	mockCache.On("Delete", ctx, key).Return(nil)

	assert.NoError(t, mockCache.Set(ctx, key, "report"))
	assert.Contains(t, mockCache.data, key)

	assert.NoError(t, mockCache.Delete(ctx, key))
	assert.NotContains(t, mockCache.data, key)

	mockCache.AssertExpectations(t)
}

func TestCacheKey_String(t *testing.T) {
	key := CacheKey{Prefix: "report:hash", ID: "deadbeef"}
	assert.Equal(t, "report:hash:deadbeef", key.String())
}

func TestCacheKeyHelpers(t *testing.T) {
	assert.Equal(t, "report:hash:abc", ReportCacheKey("abc"))
	assert.Equal(t, "report:session:s-1", SessionReportCacheKey("s-1"))
	assert.Equal(t, "session:s-1", SessionCacheKey("s-1"))
}
