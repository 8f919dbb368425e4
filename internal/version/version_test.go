package version

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}}
}

func (m *memKV) GetRaw(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errNotFound
	}
	return v, nil
}

func (m *memKV) PutRaw(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var errNotFound = notFoundError{}

func TestNextReturnsOneWhenNoPriorRecord(t *testing.T) {
	svc := NewService(newMemKV())
	v, err := svc.Next(context.Background(), "video:a.mp4:v1", false)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestNextHoldsAtOneWithoutForce(t *testing.T) {
	kv := newMemKV()
	svc := NewService(kv)

	v1, err := svc.Next(context.Background(), "video:a.mp4:v1", false)
	require.NoError(t, err)
	require.Equal(t, 1, v1)

	v2, err := svc.Next(context.Background(), "video:a.mp4:v1", false)
	require.NoError(t, err)
	require.Equal(t, 1, v2)
}

func TestNextAdvancesWithForce(t *testing.T) {
	svc := NewService(newMemKV())

	v1, err := svc.Next(context.Background(), "video:a.mp4:v1", false)
	require.NoError(t, err)
	require.Equal(t, 1, v1)

	v2, err := svc.Next(context.Background(), "video:a.mp4:v1", true)
	require.NoError(t, err)
	require.Equal(t, 2, v2)
}

func TestNextAlwaysAdvancesOnceAboveOne(t *testing.T) {
	svc := NewService(newMemKV())
	_, _ = svc.Next(context.Background(), "video:a.mp4:v1", false)
	_, _ = svc.Next(context.Background(), "video:a.mp4:v1", true) // now at 2

	v3, err := svc.Next(context.Background(), "video:a.mp4:v1", false)
	require.NoError(t, err)
	require.Equal(t, 3, v3)
}

func TestNextIsMonotonic(t *testing.T) {
	svc := NewService(newMemKV())
	prev := 0
	for i := 0; i < 5; i++ {
		v, err := svc.Next(context.Background(), "video:mono.mp4:v1", true)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestLongKeysAreHashed(t *testing.T) {
	longKey := ""
	for i := 0; i < 600; i++ {
		longKey += "a"
	}
	require.NotEqual(t, "version-"+longKey, namespaceKey(longKey))
	require.Len(t, namespaceKey(longKey), len("version-")+64)
}
