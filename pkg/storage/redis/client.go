// Package redis provides a durable key-value memory tier on Redis.
//
// Each entry is a JSON document under its own key carrying the retention hint
// as a native TTL, and every agent has a sorted set indexing its entries by
// creation time. Expiry is left to Redis, so DeleteOlderThan is a no-op; index
// members pointing at expired documents are pruned lazily by Query.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oceanbase/agentmem-go/pkg/storage"
)

const defaultScanBatch = 200

// Config holds configuration for the Redis tier.
type Config struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces every key written by the tier.
	KeyPrefix string

	// Logger receives skipped-record warnings. Nil disables logging.
	Logger *zerolog.Logger
}

// Client wraps go-redis as a storage.Backend.
type Client struct {
	rdb    *goredis.Client
	prefix string
	logger zerolog.Logger
}

// NewClient creates a new Redis tier client with connection validation.
//
// Args:
//   - cfg: address, credentials, database number and key prefix
//
// Returns:
//   - *Client: Redis tier client
//   - error: when the server does not answer PING within 5 seconds
func NewClient(cfg *Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}

	return newClient(rdb, cfg), nil
}

// NewClientFromRedis wraps an existing go-redis client.
func NewClientFromRedis(rdb *goredis.Client, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return newClient(rdb, cfg)
}

func newClient(rdb *goredis.Client, cfg *Config) *Client {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "agentmem"
	}
	c := &Client{rdb: rdb, prefix: prefix, logger: zerolog.Nop()}
	if cfg.Logger != nil {
		c.logger = cfg.Logger.With().Str("tier", "redis").Logger()
	}
	return c
}

// Name implements storage.Backend.
func (c *Client) Name() string { return "redis" }

func (c *Client) entryKey(id int64) string {
	return fmt.Sprintf("%s:entry:%d", c.prefix, id)
}

func (c *Client) agentKey(agentID string) string {
	return fmt.Sprintf("%s:agent:%s", c.prefix, agentID)
}

// Write stores the entry document and indexes it under its agent.
func (c *Client) Write(ctx context.Context, entry *storage.Entry) error {
	rec, err := storage.ToRecord(entry)
	if err != nil {
		return errors.Wrap(err, "Write")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "Write")
	}

	var ttl time.Duration
	if !entry.ExpiresAt.IsZero() {
		ttl = time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			ttl = time.Second
		}
	}

	member := strconv.FormatInt(entry.ID, 10)
	agentKey := c.agentKey(entry.AgentID)

	_, err = c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, c.entryKey(entry.ID), payload, ttl)
		pipe.ZAdd(ctx, agentKey, goredis.Z{Score: float64(rec.CreatedAt), Member: member})
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "Write")
	}
	return nil
}

// Query walks the agent index newest first and loads entry documents in batches.
//
// Index members whose document has expired are removed on the way.
func (c *Client) Query(ctx context.Context, opts *storage.QueryOptions) ([]*storage.Entry, error) {
	agentKey := c.agentKey(opts.AgentID)

	var results []*storage.Entry
	for start := int64(0); ; start += defaultScanBatch {
		members, err := c.rdb.ZRevRange(ctx, agentKey, start, start+defaultScanBatch-1).Result()
		if err != nil {
			return nil, errors.Wrap(err, "Query")
		}
		if len(members) == 0 {
			break
		}

		keys := make([]string, len(members))
		for i, m := range members {
			id, _ := strconv.ParseInt(m, 10, 64)
			keys[i] = c.entryKey(id)
		}
		values, err := c.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, errors.Wrap(err, "Query")
		}

		var stale []interface{}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				stale = append(stale, members[i])
				continue
			}
			entry, err := decode(raw)
			if err != nil {
				c.logger.Warn().Err(err).Str("key", keys[i]).Msg("skipping malformed record")
				continue
			}
			if storage.Matches(entry, opts) {
				results = append(results, entry)
			}
		}
		if len(stale) > 0 {
			// A failed removal only leaves dangling members for the next read.
			if err := c.rdb.ZRem(ctx, agentKey, stale...).Err(); err == nil {
				start -= int64(len(stale))
			}
		}

		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
		if len(members) < defaultScanBatch {
			break
		}
	}

	storage.SortRecentFirst(results)
	return storage.Truncate(results, opts.Limit), nil
}

// UpdateImportance rewrites the entry document keeping its remaining TTL.
func (c *Client) UpdateImportance(ctx context.Context, id int64, agentID string, importance float64) error {
	key := c.entryKey(id)
	raw, err := c.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return storage.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "UpdateImportance")
	}

	var rec storage.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return errors.Wrap(storage.ErrMalformedRecord, err.Error())
	}
	if rec.AgentID != agentID {
		return storage.ErrNotFound
	}
	rec.Importance = importance

	payload, err := json.Marshal(&rec)
	if err != nil {
		return errors.Wrap(err, "UpdateImportance")
	}
	if err := c.rdb.Set(ctx, key, payload, goredis.KeepTTL).Err(); err != nil {
		return errors.Wrap(err, "UpdateImportance")
	}
	return nil
}

// DeleteOlderThan is a no-op: entries expire through their native TTL.
func (c *Client) DeleteOlderThan(_ context.Context, _ string, _ time.Time) (int, error) {
	return 0, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func decode(raw string) (*storage.Entry, error) {
	var rec storage.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, errors.Wrap(storage.ErrMalformedRecord, err.Error())
	}
	return rec.ToEntry()
}
