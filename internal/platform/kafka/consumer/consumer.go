// Package consumer reads records with franz-go and hands them to a Handler.
// With a group id offsets are committed after the handler succeeds; without
// one every start replays the topics from the beginning.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"racepass/internal/platform/config"
	"racepass/internal/platform/kafka"
)

// Message is one consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes a record. An error leaves the offset uncommitted.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

type Consumer struct {
	client  *kgo.Client
	health  *kafka.HealthChecker
	handler Handler
	logger  *slog.Logger
	grouped bool

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// New creates a consumer for topics. groupID may be empty.
func New(cfg config.KafkaConfig, groupID string, topics []string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	if len(topics) == 0 {
		return nil, errors.New("no topics to consume")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if groupID != "" {
		opts = append(opts, kgo.ConsumerGroup(groupID), kgo.DisableAutoCommit())
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{
		client:  client,
		health:  kafka.NewHealthChecker(client),
		handler: handler,
		logger:  logger,
		grouped: groupID != "",
	}, nil
}

// Start launches the poll loop.
func (c *Consumer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("kafka fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(r *kgo.Record) {
			c.process(ctx, r)
		})
	}
}

func (c *Consumer) process(ctx context.Context, r *kgo.Record) {
	msg := toMessage(r)
	if err := c.handler.Handle(ctx, msg); err != nil {
		c.logger.Error("failed to handle kafka record",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return
	}
	if !c.grouped {
		return
	}
	if err := c.client.CommitRecords(ctx, r); err != nil {
		c.logger.Error("failed to commit kafka offset",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
}

func toMessage(r *kgo.Record) *Message {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &Message{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Headers:   headers,
		Timestamp: r.Timestamp,
	}
}

// Stop ends the poll loop and closes the client. It waits for the loop up
// to ctx's deadline.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		select {
		case <-c.done:
		case <-ctx.Done():
			c.client.Close()
			return ctx.Err()
		}
	}
	c.client.Close()
	return nil
}

// Health reports whether the cluster still answers metadata requests.
func (c *Consumer) Health(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("consumer is closed")
	}
	return c.health.Check(ctx)
}
