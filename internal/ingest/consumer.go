// ABOUTME: AMQP consumer bridging the messaging platform's queue into the coordinator
// ABOUTME: Decodes inbound user messages, acks on success, requeues transient failures

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/opdesk/supportd/internal/coordinator"
)

// errPoison marks a delivery that can never succeed (malformed JSON, missing
// required fields). Poison deliveries are acked and dropped with a log line;
// requeueing them would loop forever.
var errPoison = errors.New("poison message")

// Handler receives each decoded inbound message. A returned error requeues
// the delivery for another attempt.
type Handler func(ctx context.Context, msg *coordinator.InboundMessage) error

// Config holds the queue topology for the inbound message stream.
type Config struct {
	URL        string
	Exchange   string
	Queue      string
	BindingKey string
	Prefetch   int
}

// Consumer runs a single supervised AMQP consumer. The connection is
// redialed with capped exponential backoff when it drops; message handling
// uses manual acks so an unprocessed message survives a crash.
type Consumer struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger
}

// NewConsumer creates a consumer. Pass nil logger for default.
func NewConsumer(cfg Config, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	return &Consumer{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "ingest"),
	}
}

// Run consumes until ctx is cancelled. Connection failures are retried
// with backoff rather than returned; only context cancellation ends the run.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.consumeOnce(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		c.logger.Error("consumer stopped, reconnecting",
			"error", err,
			"retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff*2 < maxBackoff {
			backoff *= 2
		} else {
			backoff = maxBackoff
		}
	}
}

// consumeOnce dials, declares topology, and processes deliveries until the
// connection or context dies.
func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dialing amqp: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("setting prefetch: %w", err)
	}
	if err := c.declareTopology(ch); err != nil {
		return err
	}

	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("starting consume: %w", err)
	}

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("consumer started",
		"queue", c.cfg.Queue,
		"binding_key", c.cfg.BindingKey,
		"prefetch", c.cfg.Prefetch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closeCh:
			return fmt.Errorf("connection closed: %v", amqpErr)
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *Consumer) declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue: %w", err)
	}
	if err := ch.QueueBind(c.cfg.Queue, c.cfg.BindingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue: %w", err)
	}
	return nil
}

// handleDelivery decodes and dispatches one delivery, then settles it:
// ack on success or poison, nack-with-requeue on transient failure.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	msg, err := decodeInbound(d.Body)
	if err == nil {
		err = c.handler(ctx, msg)
	}

	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errPoison):
		c.logger.Warn("dropping poison message",
			"error", err,
			"routing_key", d.RoutingKey)
		_ = d.Ack(false)
	default:
		c.logger.Error("handling message failed, requeueing",
			"error", err)
		_ = d.Nack(false, true)
	}
}

// inboundEnvelope is the wire shape of a message event from the platform.
type inboundEnvelope struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	FromUserID     string `json:"from_user_id"`
	Content        string `json:"content"`
	ContentType    int    `json:"content_type"`
	Timestamp      int64  `json:"timestamp"` // unix milliseconds
}

// decodeInbound parses and validates a delivery body. Validation failures
// are poison: the payload will never become processable.
func decodeInbound(body []byte) (*coordinator.InboundMessage, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", errPoison, err)
	}
	if env.MessageID == "" || env.ConversationID == "" || env.FromUserID == "" {
		return nil, fmt.Errorf("%w: missing required fields", errPoison)
	}

	ts := time.UnixMilli(env.Timestamp)
	if env.Timestamp == 0 {
		ts = time.Now()
	}
	return &coordinator.InboundMessage{
		MessageID:      env.MessageID,
		ConversationID: env.ConversationID,
		UserID:         env.FromUserID,
		Content:        env.Content,
		ContentType:    env.ContentType,
		Timestamp:      ts,
	}, nil
}
