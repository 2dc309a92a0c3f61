package mq

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"hirejudge/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"github.com/zeromicro/go-zero/core/threading"
	"go.uber.org/zap"
)

const (
	headerID   = "x-message-id"
	headerKind = "x-message-kind"
	headerTime = "x-message-ts"

	fetchRetryDelay = 200 * time.Millisecond
)

// KafkaConfig defines the broker connection.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientId"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	MinBytes     int           `yaml:"minBytes"`
	MaxBytes     int           `yaml:"maxBytes"`
	MaxWait      time.Duration `yaml:"maxWait"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
}

// KafkaQueue publishes to and consumes from Kafka topics.
type KafkaQueue struct {
	cfg    KafkaConfig
	writer *kafka.Writer
	dialer *kafka.Dialer

	mu        sync.Mutex
	consumers []*consumer
	closed    bool
}

type consumer struct {
	topic   string
	opts    SubscribeOptions
	handler HandlerFunc
	reader  *kafka.Reader
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	commit  func(ctx context.Context, msgs ...kafka.Message) error
	publish func(ctx context.Context, topic string, messages ...*Message) error
}

// NewKafkaQueue creates a Kafka-backed queue. Consumers start on Subscribe.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers are required")
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 1 << 20
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	dialer := &kafka.Dialer{ClientID: cfg.ClientID, Timeout: cfg.DialTimeout, DualStack: true}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, address)
			},
			ClientID: cfg.ClientID,
		},
	}
	return &KafkaQueue{cfg: cfg, writer: writer, dialer: dialer}, nil
}

// Publish writes messages to topic keyed by their ids in one batch.
func (k *KafkaQueue) Publish(ctx context.Context, topic string, messages ...*Message) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if len(messages) == 0 {
		return nil
	}
	records := make([]kafka.Message, 0, len(messages))
	for _, message := range messages {
		if message == nil {
			return errors.New("message is nil")
		}
		records = append(records, encodeRecord(topic, message))
	}
	return k.writer.WriteMessages(ctx, records...)
}

// Subscribe starts a consumer group on topic that runs until ctx ends or the queue closes.
// Offsets are committed after the handler succeeds, gives up, or the message is too old.
func (k *KafkaQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	opts = opts.withDefaults(topic)

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errors.New("queue is closed")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.cfg.Brokers,
		Topic:    topic,
		GroupID:  opts.Group,
		MinBytes: k.cfg.MinBytes,
		MaxBytes: k.cfg.MaxBytes,
		MaxWait:  k.cfg.MaxWait,
		Dialer:   k.dialer,
	})
	c := &consumer{
		topic:   topic,
		opts:    opts,
		handler: handler,
		reader:  reader,
		commit:  reader.CommitMessages,
		publish: k.Publish,
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.run(runCtx)
	k.consumers = append(k.consumers, c)
	return nil
}

// Close stops consumers, waits for in-flight handlers and flushes the writer.
func (k *KafkaQueue) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	consumers := k.consumers
	k.consumers = nil
	k.mu.Unlock()

	var errs []error
	for _, c := range consumers {
		c.cancel()
	}
	for _, c := range consumers {
		c.wg.Wait()
		if err := c.reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := k.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *consumer) run(ctx context.Context) {
	records := make(chan kafka.Message, c.opts.Workers)
	c.wg.Add(1 + c.opts.Workers)
	threading.GoSafe(func() {
		defer c.wg.Done()
		defer close(records)
		c.fetch(ctx, records)
	})
	for i := 0; i < c.opts.Workers; i++ {
		threading.GoSafe(func() {
			defer c.wg.Done()
			for rec := range records {
				c.handle(ctx, rec)
			}
		})
	}
}

func (c *consumer) fetch(ctx context.Context, out chan<- kafka.Message) {
	for {
		rec, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "kafka fetch failed", zap.String("topic", c.topic), zap.Error(err))
			if !sleepCtx(ctx, fetchRetryDelay) {
				return
			}
			continue
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return
		}
	}
}

// handle leaves the offset uncommitted only when ctx ends mid-backoff, so the
// record is redelivered to the next member of the group.
func (c *consumer) handle(ctx context.Context, rec kafka.Message) {
	msg := decodeRecord(rec)
	if c.opts.MaxAge > 0 && !msg.Timestamp.IsZero() && time.Since(msg.Timestamp) > c.opts.MaxAge {
		logger.Warn(ctx, "drop stale message",
			zap.String("topic", c.topic),
			zap.String("message_id", msg.ID),
			zap.Time("sent_at", msg.Timestamp))
		c.ack(ctx, rec)
		return
	}

	for msg.Attempt = 1; ; msg.Attempt++ {
		err := c.handler(ctx, msg)
		if err == nil {
			break
		}
		if msg.Attempt >= c.opts.MaxAttempts {
			logger.Error(ctx, "message attempts exhausted",
				zap.String("topic", c.topic),
				zap.String("message_id", msg.ID),
				zap.Int("attempts", msg.Attempt),
				zap.Error(err))
			if c.opts.DeadLetterTopic != "" {
				if dlqErr := c.publish(ctx, c.opts.DeadLetterTopic, msg); dlqErr != nil {
					logger.Error(ctx, "dead letter publish failed", zap.String("message_id", msg.ID), zap.Error(dlqErr))
				}
			}
			break
		}
		if !sleepCtx(ctx, c.opts.Backoff*time.Duration(msg.Attempt)) {
			return
		}
	}
	c.ack(ctx, rec)
}

func (c *consumer) ack(ctx context.Context, rec kafka.Message) {
	if err := c.commit(ctx, rec); err != nil && ctx.Err() == nil {
		logger.Warn(ctx, "kafka commit failed", zap.String("topic", c.topic), zap.Int64("offset", rec.Offset), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func encodeRecord(topic string, message *Message) kafka.Message {
	ts := message.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	headers := []kafka.Header{{Key: headerTime, Value: []byte(ts.UTC().Format(time.RFC3339Nano))}}
	if message.ID != "" {
		headers = append(headers, kafka.Header{Key: headerID, Value: []byte(message.ID)})
	}
	if message.Kind != "" {
		headers = append(headers, kafka.Header{Key: headerKind, Value: []byte(message.Kind)})
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(message.ID),
		Value:   message.Body,
		Headers: headers,
		Time:    ts,
	}
}

func decodeRecord(rec kafka.Message) *Message {
	m := &Message{ID: string(rec.Key), Body: rec.Value, Timestamp: rec.Time}
	for _, h := range rec.Headers {
		switch h.Key {
		case headerID:
			m.ID = string(h.Value)
		case headerKind:
			m.Kind = string(h.Value)
		case headerTime:
			if ts, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
				m.Timestamp = ts
			}
		}
	}
	return m
}
