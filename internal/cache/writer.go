package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/randyridgley/cdk-athena-federated/internal/generator"
)

// CacheWriteError reports a failed pipeline. Redis pipelines are not atomic,
// so some of the batch may already be visible when this is returned.
type CacheWriteError struct {
	Collection string
	Size       int
	Failed     int
	Err        error
}

func (e *CacheWriteError) Error() string {
	return fmt.Sprintf("cache pipeline for %s failed (%d of %d commands): %v", e.Collection, e.Failed, e.Size, e.Err)
}

func (e *CacheWriteError) Unwrap() error {
	return e.Err
}

// WriteBatch queues an HSET and a ZADD per record and sends them in one
// round trip.
func (c *Conn) WriteBatch(ctx context.Context, batch generator.Batch) error {
	if len(batch) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, record := range batch {
		key := c.RowKey(record.ID)
		pipe.HSet(ctx, key, FieldLabel, record.Label, FieldValue, record.Value)
		pipe.ZAdd(ctx, c.collection, redis.Z{Score: 0, Member: key})
	}

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		failed := 0
		for _, cmd := range cmds {
			if cmd.Err() != nil {
				failed++
			}
		}
		if failed == 0 {
			failed = 2 * len(batch)
		}
		return &CacheWriteError{Collection: c.collection, Size: 2 * len(batch), Failed: failed, Err: err}
	}
	return nil
}

// Row is a record as stored in the cache.
type Row struct {
	Label  string `json:"ticker"`
	Value  string `json:"price"`
	Member bool   `json:"member"`
}

// ReadRows fetches the hashes for ids, and whether each key is in the
// collection, in one pipeline. Ids without a hash are absent from the result.
func (c *Conn) ReadRows(ctx context.Context, ids []string) (map[string]Row, error) {
	rows := make(map[string]Row, len(ids))
	if len(ids) == 0 {
		return rows, nil
	}

	pipe := c.client.Pipeline()
	fields := make([]*redis.MapStringStringCmd, len(ids))
	scores := make([]*redis.FloatCmd, len(ids))
	for i, id := range ids {
		key := c.RowKey(id)
		fields[i] = pipe.HGetAll(ctx, key)
		scores[i] = pipe.ZScore(ctx, c.collection, key)
	}
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if cerr := cmd.Err(); cerr != nil && !errors.Is(cerr, redis.Nil) {
				return nil, fmt.Errorf("failed to read %d rows from %s: %w", len(ids), c.collection, cerr)
			}
		}
	}

	for i, id := range ids {
		values := fields[i].Val()
		if len(values) == 0 {
			continue
		}
		rows[id] = Row{
			Label:  values[FieldLabel],
			Value:  values[FieldValue],
			Member: scores[i].Err() == nil,
		}
	}
	return rows, nil
}

// Size returns the number of row keys in the collection.
func (c *Conn) Size(ctx context.Context) (int64, error) {
	return c.client.ZCard(ctx, c.collection).Result()
}
