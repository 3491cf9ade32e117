package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/lcdcanvas/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// pointWriter is the part of api.WriteAPI lcdcanvas uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client batches display telemetry into one bucket. Writes never block the
// caller. Safe for concurrent use.
type Client struct {
	client influxdb2.Client
	writer pointWriter
	closed atomic.Bool

	mu      sync.RWMutex
	onError func(error)
}

func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch, flush := uint(defaultBatchSize), defaultFlushInterval
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize) //nolint:gosec // checked positive
	}
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())) //nolint:gosec // positive
}

// ping turns the two failure shapes of Client.Ping into one error.
func ping(ctx context.Context, client influxdb2.Client) error {
	ok, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnhealthy
	}
	return nil
}

// Connect checks the server answers and opens the batched write API.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	api := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := &Client{client: client, writer: api}
	go c.forwardErrors(api.Errors())
	return c, nil
}

// forwardErrors drains write failures so the write API never blocks on
// its error channel.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		cb := c.onError
		c.mu.RUnlock()
		if cb != nil {
			cb(err)
		}
	}
}

// SetOnError receives asynchronous batch write failures.
func (c *Client) SetOnError(cb func(err error)) {
	c.mu.Lock()
	c.onError = cb
	c.mu.Unlock()
}

func (c *Client) IsConnected() bool {
	return !c.closed.Load()
}

// HealthCheck pings the server, bounded by pingTimeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush sends buffered points now.
func (c *Client) Flush() {
	if !c.closed.Load() {
		c.writer.Flush()
	}
}

// Close flushes once and releases the client. Later writes are dropped.
func (c *Client) Close() error {
	if c == nil || c.writer == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writer.Flush()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
