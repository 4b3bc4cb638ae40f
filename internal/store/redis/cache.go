package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"portfolio-enginev1/internal/metrics"
)

const (
	// SummaryKeyPrefix is followed by the filter kind.
	SummaryKeyPrefix = "portfolio:summary:"
	// SummaryChannel carries freshly computed "all" summaries.
	SummaryChannel = "pub:portfolio:summary"

	defaultSummaryTTL = 15 * time.Minute
)

// ErrCacheMiss is returned by GetSummary when no entry exists.
var ErrCacheMiss = errors.New("summary cache miss")

// Config configures the Redis summary cache.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	SummaryTTL   time.Duration // <= 0 means 15m
	MaxFailures  int           // breaker threshold, <= 0 means 5
	ResetTimeout time.Duration // breaker cool-down, <= 0 means 10s
}

// Cache stores computed summaries and publishes them for other replicas.
// Every call goes through the circuit breaker. While the breaker is open
// the most recent Publish payload is held and sent once it closes again;
// older held payloads are superseded.
type Cache struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	ttl     time.Duration

	mu      sync.Mutex
	pending []byte
}

// SummaryKey returns the cache key for a filter kind.
func SummaryKey(filter string) string {
	if filter == "" {
		filter = "All"
	}
	return SummaryKeyPrefix + filter
}

// New connects to Redis and pings it.
func New(cfg Config, m *metrics.Metrics) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg, m), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config, m *metrics.Metrics) *Cache {
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	reset := cfg.ResetTimeout
	if reset <= 0 {
		reset = 10 * time.Second
	}
	ttl := cfg.SummaryTTL
	if ttl <= 0 {
		ttl = defaultSummaryTTL
	}

	c := &Cache{
		client:  client,
		breaker: NewCircuitBreaker(maxFailures, reset),
		ttl:     ttl,
	}
	c.breaker.Instrument(m)
	c.breaker.OnStateChange(func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
		if to == StateClosed {
			go c.flushPending()
		}
	})
	return c
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// Breaker returns the circuit breaker guarding this cache.
func (c *Cache) Breaker() *CircuitBreaker { return c.breaker }

// PutSummary stores v as JSON under the filter's key with the cache TTL.
func (c *Cache) PutSummary(ctx context.Context, filter string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return c.breaker.Execute(func() error {
		return c.client.Set(ctx, SummaryKey(filter), data, c.ttl).Err()
	})
}

// GetSummary decodes the cached entry for filter into dst.
// Returns ErrCacheMiss when nothing is cached.
func (c *Cache) GetSummary(ctx context.Context, filter string, dst any) error {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, SummaryKey(filter)).Bytes()
		return err
	})
	if errors.Is(err, goredis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal summary: %w", err)
	}
	return nil
}

// Invalidate drops every cached summary. Called after a new snapshot is
// stored so filtered views are recomputed.
func (c *Cache) Invalidate(ctx context.Context, filters ...string) error {
	keys := make([]string, len(filters))
	for i, f := range filters {
		keys[i] = SummaryKey(f)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.breaker.Execute(func() error {
		return c.client.Del(ctx, keys...).Err()
	})
}

// Publish sends payload on SummaryChannel.
func (c *Cache) Publish(ctx context.Context, payload []byte) error {
	err := c.breaker.Execute(func() error {
		return c.client.Publish(ctx, SummaryChannel, payload).Err()
	})
	if errors.Is(err, ErrCircuitOpen) {
		c.mu.Lock()
		c.pending = append([]byte(nil), payload...)
		c.mu.Unlock()
	}
	return err
}

// Pending reports whether a publish is waiting for the breaker to close.
func (c *Cache) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

func (c *Cache) flushPending() {
	c.mu.Lock()
	payload := c.pending
	c.pending = nil
	c.mu.Unlock()
	if payload == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Publish(ctx, payload); err != nil {
		log.Printf("[redis] flush pending summary: %v", err)
		return
	}
	log.Printf("[redis] flushed held summary (%d bytes)", len(payload))
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Subscriber consumes SummaryChannel.
type Subscriber struct {
	client *goredis.Client
}

// NewSubscriber creates a Subscriber on client.
func NewSubscriber(client *goredis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Run subscribes to SummaryChannel and calls fn for every payload.
// Blocks until ctx is cancelled or the subscription closes.
func (s *Subscriber) Run(ctx context.Context, fn func(payload []byte)) error {
	pubsub := s.client.Subscribe(ctx, SummaryChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", SummaryChannel, err)
	}
	log.Printf("[redis] subscribed to %s", SummaryChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn([]byte(msg.Payload))
		}
	}
}
