package ads

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"hls-live/internal/live"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces ad keys.
const DefaultRedisPrefix = "hls:ads:"

// RedisStore keeps ad segments in Redis hashes and serves lookups from an
// in-memory snapshot refreshed by Refresh or Run. Each slot is stored at
// <prefix><class>:<rate>:<bits>:<channels>:<fps>:<slot> with the fields
// "duration" and "data".
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	snapshot atomic.Pointer[map[string][]*live.Segment]
}

// NewRedisStore returns a store with an empty snapshot. Call Refresh before
// serving viewers.
func NewRedisStore(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	r := &RedisStore{client: client, prefix: prefix, logger: logger}
	empty := map[string][]*live.Segment{}
	r.snapshot.Store(&empty)
	return r
}

func (r *RedisStore) slotKey(k Key, slot int) string {
	return r.prefix + k.String() + ":" + strconv.Itoa(slot)
}

// Put writes the ads for class and params to Redis, replacing any slots
// beyond len(ads). The snapshot is not updated until the next Refresh.
func (r *RedisStore) Put(ctx context.Context, class live.MediaClass, params live.CodecParams, ads []Ad) error {
	k := KeyFor(class, params)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for slot := 1; slot <= live.MaxAdSlots; slot++ {
			key := r.slotKey(k, slot)
			if slot > len(ads) {
				pipe.Del(ctx, key)
				continue
			}
			ad := ads[slot-1]
			pipe.HSet(ctx, key,
				"duration", strconv.FormatFloat(ad.Duration, 'f', -1, 64),
				"data", ad.Payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put ads %s: %w", k, err)
	}
	return nil
}

// Refresh reloads every ad set from Redis and swaps the snapshot. On error
// the previous snapshot stays in place.
func (r *RedisStore) Refresh(ctx context.Context) error {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan ads: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	if len(keys) > 0 {
		_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, key := range keys {
				cmds[i] = pipe.HGetAll(ctx, key)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("load ads: %w", err)
		}
	}

	type slotted struct {
		slot int
		ad   Ad
	}
	grouped := make(map[string][]slotted)
	for i, key := range keys {
		set, slot, ok := r.splitKey(key)
		if !ok {
			r.logger.Warn("ignoring malformed ad key", slog.String("key", key))
			continue
		}
		fields := cmds[i].Val()
		dur, err := strconv.ParseFloat(fields["duration"], 64)
		if err != nil {
			r.logger.Warn("ignoring ad with bad duration", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		grouped[set] = append(grouped[set], slotted{slot: slot, ad: Ad{Payload: []byte(fields["data"]), Duration: dur}})
	}

	next := make(map[string][]*live.Segment, len(grouped))
	for set, entries := range grouped {
		sort.Slice(entries, func(i, j int) bool { return entries[i].slot < entries[j].slot })
		ads := make([]Ad, 0, len(entries))
		for i, e := range entries {
			// Slots must be contiguous from 1.
			if e.slot != i+1 {
				break
			}
			ads = append(ads, e.ad)
		}
		next[set] = toSegments(ads)
	}
	r.snapshot.Store(&next)

	r.logger.Debug("ads refreshed", slog.Int("sets", len(next)), slog.Int("keys", len(keys)))
	return nil
}

// splitKey returns the ad-set part and the slot number of a Redis key.
func (r *RedisStore) splitKey(key string) (string, int, bool) {
	rest := strings.TrimPrefix(key, r.prefix)
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 {
		return "", 0, false
	}
	slot, err := strconv.Atoi(rest[i+1:])
	if err != nil || slot < 1 || slot > live.MaxAdSlots {
		return "", 0, false
	}
	return rest[:i], slot, true
}

// Lookup implements live.AdStore from the current snapshot.
func (r *RedisStore) Lookup(class live.MediaClass, params live.CodecParams) []*live.Segment {
	return (*r.snapshot.Load())[KeyFor(class, params).String()]
}

// Run refreshes the snapshot every interval until ctx is canceled.
func (r *RedisStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Error("ads refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
