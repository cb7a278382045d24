package presence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCourierSource is a mock implementation of CourierSource.
type MockCourierSource struct {
	mock.Mock
}

func (m *MockCourierSource) ListReadyIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func newTestRegistry(t *testing.T) (*miniredis.Miniredis, *MockCourierSource, *Registry) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	source := new(MockCourierSource)
	return mr, source, NewRegistry(client, source, zerolog.Nop())
}

func TestRegistry_MarkOnlineOffline(t *testing.T) {
	_, source, registry := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.MarkOnline(ctx, 1))
	require.NoError(t, registry.MarkOnline(ctx, 2))

	online, err := registry.ListOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true, 2: true}, online)

	require.NoError(t, registry.MarkOffline(ctx, 1))

	online, err = registry.ListOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{2: true}, online)

	source.AssertNotCalled(t, "ListReadyIDs", mock.Anything)
}

func TestRegistry_EmptyCacheFallsBackToDurableStore(t *testing.T) {
	mr, source, registry := newTestRegistry(t)
	ctx := context.Background()

	source.On("ListReadyIDs", mock.Anything).Return([]int64{4, 9}, nil).Once()

	online, err := registry.ListOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{4: true, 9: true}, online)

	// The cache was repopulated; the durable store is not hit again.
	assert.True(t, mr.Exists(onlineKey))
	online, err = registry.ListOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{4: true, 9: true}, online)

	source.AssertExpectations(t)
}

func TestRegistry_NobodyReadyAnywhere(t *testing.T) {
	_, source, registry := newTestRegistry(t)
	ctx := context.Background()

	source.On("ListReadyIDs", mock.Anything).Return([]int64{}, nil)

	online, err := registry.ListOnline(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)
}
