package cache

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// --- codec unit tests ---

func TestEncodeDecode_Roundtrip(t *testing.T) {
	vec := []float32{0.5, -0.25, 0.125, 1.0}
	raw, err := encodeVector(vec, time.Now().UTC())
	require.NoError(t, err)

	got, err := decodeVector(raw)
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestEncode_EmptyVector(t *testing.T) {
	_, err := encodeVector(nil, time.Now())
	assert.Error(t, err)
}

func TestDecode_Truncated(t *testing.T) {
	vec := []float32{0.1, 0.2, 0.3}
	raw, err := encodeVector(vec, time.Now())
	require.NoError(t, err)

	_, err = decodeVector(raw[:len(raw)-4])
	assert.Error(t, err)

	_, err = decodeVector(raw[:5])
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	assert.Equal(t, v, Normalize(v))
}

// --- redis integration tests ---

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) *RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rc, err := NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return rc
}

func TestPutGet_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	vec := Normalize([]float32{0.1, 0.9, 0.3, 0.2})
	require.NoError(t, rc.Put(ctx, "NIST-SP-800-53#R5#AC-1", "v1", vec))

	got, found, err := rc.Get(ctx, "NIST-SP-800-53#R5#AC-1", "v1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.InDeltaSlice(t, vec, got, 1e-6)
}

func TestPut_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	vec := []float32{1, 2, 2}
	for i := 0; i < 3; i++ {
		require.NoError(t, rc.Put(ctx, "AWS.EC2#1.0#PR.1", "v1", vec))
	}

	got, found, err := rc.Get(ctx, "AWS.EC2#1.0#PR.1", "v1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.InDeltaSlice(t, Normalize(vec), got, 1e-6)
}

func TestGet_MissOnUnknownKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	_, found, err := rc.Get(context.Background(), "unknown#1.0#X", "v1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGet_MissOnModelVersionBump(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Put(ctx, "AWS.EC2#1.0#PR.1", "v1", []float32{0.3, 0.4}))

	_, found, err := rc.Get(ctx, "AWS.EC2#1.0#PR.1", "v2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBatchGet_MixedHitsAndMisses(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Put(ctx, "F#1#A", "v1", []float32{1, 0}))
	require.NoError(t, rc.Put(ctx, "F#1#C", "v1", []float32{0, 1}))

	got, err := rc.BatchGet(ctx, []string{"F#1#A", "F#1#B", "F#1#C"}, "v1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "F#1#A")
	assert.Contains(t, got, "F#1#C")
	assert.NotContains(t, got, "F#1#B")
}

func TestBatchGet_ManyKeysCrossChunkBoundary(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	keys := make([]string, 0, 150)
	for i := 0; i < 150; i++ {
		key := "F#1#" + string(rune('A'+i%26)) + string(rune('0'+i/26))
		keys = append(keys, key)
		require.NoError(t, rc.Put(ctx, key, "v1", []float32{float32(i), 1}))
	}

	got, err := rc.BatchGet(ctx, keys, "v1")
	require.NoError(t, err)
	assert.Len(t, got, 150)
}

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	n, err := rc.IncrWithExpiry(ctx, RateLimitKey("10.0.0.1"), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = rc.IncrWithExpiry(ctx, RateLimitKey("10.0.0.1"), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
