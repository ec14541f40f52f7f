package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/probeline/probeline/internal/metrics"
	"github.com/probeline/probeline/internal/plugin"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "probe_listeners"

	// DefaultBatchSize is the max messages read per round.
	DefaultBatchSize = 100

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	DefaultClaimIdle = 30 * time.Second

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 5 * time.Second
)

// Dispatcher receives decoded lifecycle events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev plugin.Event)
}

// Consumer reads lifecycle events from the Redis stream and hands them to
// the probe engine.
type Consumer struct {
	redis           *redis.Client
	dispatcher      Dispatcher
	logger          *slog.Logger
	metrics         metrics.Recorder
	consumerID      string
	batchSize       int
	blockTimeout    time.Duration
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration
	claimStartID    string
	lastClaim       time.Time
	lastMetrics     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewConsumer creates a stream consumer.
func NewConsumer(client *redis.Client, dispatcher Dispatcher, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Consumer {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Consumer{
		redis:           client,
		dispatcher:      dispatcher,
		logger:          logger.With("component", "events.consumer", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		claimStartID:    "0-0",
	}
}

// Run starts the consumer loop. Blocks until context is cancelled or
// Shutdown is called.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("consumer already started")
	}
	c.started = true
	c.done = make(chan struct{})
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	defer close(c.done)

	if err := c.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	c.logger.Info("event consumer started")

	for {
		c.mu.Lock()
		draining := c.draining
		c.mu.Unlock()

		if draining {
			c.logger.Info("event consumer draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			c.logger.Info("event consumer stopping")
			return nil
		default:
			if err := c.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				c.logger.Error("process error", "error", err)
				sleep(ctx, time.Second)
			}
		}
	}
}

// Shutdown stops the consumer after the in-flight round.
// It implements server.ShutdownFunc.
func (c *Consumer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.draining = true
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	c.logger.Info("event consumer shutdown initiated")

	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		c.logger.Info("event consumer shutdown complete")
		return nil
	case <-ctx.Done():
		c.logger.Warn("event consumer shutdown timed out")
		return ctx.Err()
	}
}

// SetBatchSize overrides the default batch size.
func (c *Consumer) SetBatchSize(size int) {
	if size > 0 {
		c.batchSize = size
	}
}

// SetBlockTimeout overrides the default blocking timeout.
func (c *Consumer) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.blockTimeout = timeout
	}
}

// SetClaimIdle overrides the default pending idle threshold.
func (c *Consumer) SetClaimIdle(idle time.Duration) {
	if idle > 0 {
		c.claimIdle = idle
	}
}

func (c *Consumer) ensureConsumerGroup(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

// processOnce reads one round of messages, dispatches them and acknowledges
// them. Dispatch never fails, so every read message is acknowledged.
func (c *Consumer) processOnce(ctx context.Context) error {
	c.maybeUpdateQueueDepth(ctx)

	messages, err := c.maybeClaimPending(ctx)
	if err != nil {
		c.logger.Warn("failed to claim pending messages", "error", err)
	}
	if len(messages) == 0 {
		messages, err = c.readBatch(ctx)
		if err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)

		ev, reason, err := parseMessage(msg)
		if err != nil {
			c.deadLetter(ctx, msg, reason, err.Error())
			continue
		}

		c.metrics.IncEventReceived("stream")
		c.dispatcher.Dispatch(ctx, ev)
		c.metrics.IncStreamMessage("success")
	}

	return c.ack(ctx, ids)
}

func (c *Consumer) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if c.claimInterval <= 0 || c.claimIdle <= 0 {
		return nil, nil
	}
	if !c.lastClaim.IsZero() && time.Since(c.lastClaim) < c.claimInterval {
		return nil, nil
	}

	c.lastClaim = time.Now()
	messages, start, err := c.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: c.consumerID,
		MinIdle:  c.claimIdle,
		Start:    c.claimStartID,
		Count:    int64(c.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		c.claimStartID = start
	}
	return messages, nil
}

func (c *Consumer) maybeUpdateQueueDepth(ctx context.Context) {
	if c.metricsInterval <= 0 {
		return
	}
	if !c.lastMetrics.IsZero() && time.Since(c.lastMetrics) < c.metricsInterval {
		return
	}
	c.lastMetrics = time.Now()

	groups, err := c.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, group := range groups {
		if group.Name == ConsumerGroup {
			c.metrics.SetStreamQueueDepth(group.Pending + group.Lag)
			return
		}
	}
}

func (c *Consumer) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: c.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(c.batchSize),
		Block:    c.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	return streams[0].Messages, nil
}

// parseMessage decodes a stream message. On failure it returns the
// dead-letter reason alongside the error.
func parseMessage(msg redis.XMessage) (plugin.Event, string, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return plugin.Event{}, "invalid_format", errors.New("payload field missing or not a string")
	}

	var payload EventPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return plugin.Event{}, "unmarshal_error", err
	}
	if err := ValidateEventPayload(payload); err != nil {
		return plugin.Event{}, "validation_error", err
	}

	ev, err := payload.ToEvent()
	if err != nil {
		return plugin.Event{}, "unmarshal_error", err
	}
	return ev, "", nil
}

// deadLetter moves a poison message to the dead-letter stream.
func (c *Consumer) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	c.logger.Warn("dead-lettering poison message",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)

	_, err := c.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"original_stream":  StreamKey,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		c.logger.Error("failed to write to dead-letter queue",
			"message_id", msg.ID,
			"error", err,
		)
		c.metrics.IncStreamMessage("failed")
		return
	}

	c.metrics.IncStreamMessage("dead_lettered")
}

func (c *Consumer) ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func isConsumerGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
