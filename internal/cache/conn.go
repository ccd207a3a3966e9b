// Package cache writes loader batches to Redis in the layout the Athena Redis
// connector reads (redis-keys-zset=companies, redis-value-type=hash). Each
// record costs two commands in the batch pipeline:
//
//	HSET companies:<id> ticker <label> price <value>
//	ZADD companies 0 companies:<id>
//
// The hash holds the row's columns; the sorted set is the connector's index
// of row keys.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultCollection = "companies"
	DefaultPort       = 6379

	FieldLabel = "ticker"
	FieldValue = "price"
)

// ConnectionError means the cache could not be reached at startup.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to cache at %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Dialer opens the single cache connection a run uses.
type Dialer struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	Collection  string
}

// Dial creates the client and pings it so an unreachable cache fails the run
// before any batch is generated. Client-side command retries are disabled.
func (d Dialer) Dial(ctx context.Context) (*Conn, error) {
	if d.Addr == "" {
		return nil, &ConnectionError{Addr: d.Addr, Err: errors.New("no cache address configured")}
	}
	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        d.Addr,
		Password:    d.Password,
		DB:          d.DB,
		DialTimeout: timeout,
		PoolSize:    1,
		MaxRetries:  -1,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &ConnectionError{Addr: d.Addr, Err: err}
	}
	return NewConn(client, d.Collection), nil
}

// Conn owns one Redis client for the duration of a run.
type Conn struct {
	client     *redis.Client
	collection string
	closeOnce  sync.Once
	closeErr   error
}

func NewConn(client *redis.Client, collection string) *Conn {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Conn{client: client, collection: collection}
}

func (c *Conn) Collection() string {
	return c.collection
}

// RowKey is the hash key holding one record's fields.
func (c *Conn) RowKey(id string) string {
	return c.collection + ":" + id
}

// Close releases the connection. Calls after the first return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.client.Close()
	})
	return c.closeErr
}
