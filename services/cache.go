package services

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	maxScanKeys    = 200
	sampleKeyCount = 10
)

// CacheService exposes read-mostly introspection of the console's Redis.
type CacheService struct {
	Redis *redis.Client
}

func NewCacheService(rdb *redis.Client) *CacheService {
	return &CacheService{Redis: rdb}
}

type CacheStatus struct {
	Connected     bool     `json:"connected"`
	Version       string   `json:"version,omitempty"`
	Keys          int64    `json:"keys"`
	UsedMemory    string   `json:"used_memory,omitempty"`
	Hits          int64    `json:"hits"`
	Misses        int64    `json:"misses"`
	HitRate       float64  `json:"hit_rate"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	SampleKeys    []string `json:"sample_keys"`
	Error         string   `json:"error,omitempty"`
}

// ParseInfo turns the INFO reply into a flat map.
func ParseInfo(info string) map[string]string {
	out := map[string]string{}
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			out[k] = v
		}
	}
	return out
}

// Status never fails: an unreachable server is reported as disconnected.
func (s *CacheService) Status(ctx context.Context) CacheStatus {
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		return CacheStatus{Error: err.Error()}
	}
	st := CacheStatus{Connected: true, SampleKeys: []string{}}

	if info, err := s.Redis.Info(ctx).Result(); err == nil {
		fields := ParseInfo(info)
		st.Version = fields["redis_version"]
		st.UsedMemory = fields["used_memory_human"]
		st.Hits, _ = strconv.ParseInt(fields["keyspace_hits"], 10, 64)
		st.Misses, _ = strconv.ParseInt(fields["keyspace_misses"], 10, 64)
		st.UptimeSeconds, _ = strconv.ParseInt(fields["uptime_in_seconds"], 10, 64)
		if total := st.Hits + st.Misses; total > 0 {
			st.HitRate = float64(st.Hits) / float64(total)
		}
	}
	if n, err := s.Redis.DBSize(ctx).Result(); err == nil {
		st.Keys = n
	}
	if keys, _, err := s.Redis.Scan(ctx, 0, "*", sampleKeyCount).Result(); err == nil {
		st.SampleKeys = keys
	}
	return st
}

// Keys scans for keys matching pattern, stopping at maxScanKeys.
func (s *CacheService) Keys(ctx context.Context, pattern string) ([]string, bool, error) {
	if pattern == "" {
		pattern = "*"
	}
	keys := []string{}
	var cursor uint64
	for {
		batch, next, err := s.Redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, false, fmt.Errorf("failed to scan keys: %w", err)
		}
		for _, k := range batch {
			if len(keys) == maxScanKeys {
				return keys, true, nil
			}
			keys = append(keys, k)
		}
		cursor = next
		if cursor == 0 {
			return keys, false, nil
		}
	}
}

type CacheEntry struct {
	Key   string      `json:"key"`
	Type  string      `json:"type"`
	TTL   int64       `json:"ttl"` // seconds, -1 when persistent
	Value interface{} `json:"value"`
}

func (s *CacheService) GetKey(ctx context.Context, key string) (CacheEntry, error) {
	entry := CacheEntry{Key: key}
	kind, err := s.Redis.Type(ctx, key).Result()
	if err != nil {
		return entry, fmt.Errorf("failed to read key type: %w", err)
	}
	if kind == "none" {
		return entry, notFound("key")
	}
	entry.Type = kind

	ttl, err := s.Redis.TTL(ctx, key).Result()
	if err != nil {
		return entry, fmt.Errorf("failed to read ttl: %w", err)
	}
	entry.TTL = -1
	if ttl > 0 {
		entry.TTL = int64(ttl / time.Second)
	}

	switch kind {
	case "string":
		entry.Value, err = s.Redis.Get(ctx, key).Result()
	case "hash":
		entry.Value, err = s.Redis.HGetAll(ctx, key).Result()
	case "list":
		entry.Value, err = s.Redis.LRange(ctx, key, 0, 99).Result()
	case "set":
		entry.Value, err = s.Redis.SMembers(ctx, key).Result()
	case "zset":
		entry.Value, err = s.Redis.ZRangeWithScores(ctx, key, 0, 99).Result()
	default:
		entry.Value = nil
	}
	if err != nil {
		return entry, fmt.Errorf("failed to read value: %w", err)
	}
	return entry, nil
}

func (s *CacheService) DeleteKey(ctx context.Context, key string) error {
	n, err := s.Redis.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if n == 0 {
		return notFound("key")
	}
	return nil
}

func (s *CacheService) Flush(ctx context.Context) error {
	if err := s.Redis.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}
	return nil
}
