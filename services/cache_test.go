package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInfo = `# Server
redis_version:7.2.4
uptime_in_seconds:3600

# Memory
used_memory_human:1.20M

# Stats
keyspace_hits:30
keyspace_misses:10
`

func TestParseInfo(t *testing.T) {
	fields := ParseInfo(sampleInfo)
	assert.Equal(t, "7.2.4", fields["redis_version"])
	assert.Equal(t, "1.20M", fields["used_memory_human"])
	assert.NotContains(t, fields, "# Server")
}

func TestCacheService_Status(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectPing().SetVal("PONG")
	mock.ExpectInfo().SetVal(sampleInfo)
	mock.ExpectDBSize().SetVal(42)
	mock.ExpectScan(0, "*", 10).SetVal([]string{"sysnotif:cooldown:high_cpu"}, 0)

	st := NewCacheService(rdb).Status(context.Background())
	assert.True(t, st.Connected)
	assert.Equal(t, int64(42), st.Keys)
	assert.Equal(t, "7.2.4", st.Version)
	assert.Equal(t, int64(3600), st.UptimeSeconds)
	assert.InDelta(t, 0.75, st.HitRate, 0.0001)
	assert.Equal(t, []string{"sysnotif:cooldown:high_cpu"}, st.SampleKeys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheService_Status_Disconnected(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectPing().SetErr(errors.New("connection refused"))

	st := NewCacheService(rdb).Status(context.Background())
	assert.False(t, st.Connected)
	assert.Equal(t, "connection refused", st.Error)
}

func TestCacheService_Keys(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectScan(0, "sysnotif:*", 100).SetVal([]string{"sysnotif:a"}, 7)
	mock.ExpectScan(7, "sysnotif:*", 100).SetVal([]string{"sysnotif:b"}, 0)

	keys, truncated, err := NewCacheService(rdb).Keys(context.Background(), "sysnotif:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"sysnotif:a", "sysnotif:b"}, keys)
	assert.False(t, truncated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheService_GetKey(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectType("sysnotif:cooldown:high_cpu").SetVal("string")
	mock.ExpectTTL("sysnotif:cooldown:high_cpu").SetVal(90 * time.Second)
	mock.ExpectGet("sysnotif:cooldown:high_cpu").SetVal("1")

	entry, err := NewCacheService(rdb).GetKey(context.Background(), "sysnotif:cooldown:high_cpu")
	require.NoError(t, err)
	assert.Equal(t, "string", entry.Type)
	assert.Equal(t, int64(90), entry.TTL)
	assert.Equal(t, "1", entry.Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheService_GetKey_Missing(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectType("nope").SetVal("none")

	_, err := NewCacheService(rdb).GetKey(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCacheService_DeleteKey(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectDel("gone").SetVal(0)
	mock.ExpectDel("here").SetVal(1)

	svc := NewCacheService(rdb)
	assert.True(t, errors.Is(svc.DeleteKey(context.Background(), "gone"), ErrNotFound))
	assert.NoError(t, svc.DeleteKey(context.Background(), "here"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
