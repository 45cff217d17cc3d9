package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/streadway/amqp"
	"go.uber.org/zap"
)

// DefaultExchange is the topic exchange domain events are published to.
const DefaultExchange = "bookstore.events"

// Client holds the RabbitMQ connection and the publishing channel.
type Client struct {
	conn     *amqp.Connection
	exchange string
	logger   *zap.Logger

	mu      sync.Mutex
	channel *amqp.Channel
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL      string
	Exchange string
	// DialAttempts bounds connection retries at startup. Zero means 5.
	DialAttempts int
}

// NewClient connects to RabbitMQ and declares the topic exchange.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq: URL is required")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.DialAttempts <= 0 {
		cfg.DialAttempts = 5
	}

	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < cfg.DialAttempts; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		wait := time.Duration(i*i)*time.Second + time.Second
		log.Warn("failed to connect to RabbitMQ, retrying", zap.Duration("in", wait), zap.Error(err))
		time.Sleep(wait)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareExchange(ch, cfg.Exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.Info("RabbitMQ client connected", zap.String("exchange", cfg.Exchange))
	return &Client{conn: conn, channel: ch, exchange: cfg.Exchange, logger: log}, nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	err := ch.ExchangeDeclare(
		name,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	return nil
}

// Close closes the RabbitMQ connection and channel.
func (c *Client) Close() error {
	var errs []error
	c.mu.Lock()
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	c.mu.Unlock()
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Publish marshals event to JSON and publishes it persistently under
// routingKey.
func (c *Client) Publish(ctx context.Context, routingKey string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := newPublishing(event, time.Now())
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return errors.New("rabbitmq: channel is not available")
	}
	if err := c.channel.Publish(c.exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", routingKey, c.exchange, err)
	}

	c.logger.Debug("event published", zap.String("routing_key", routingKey), zap.Int("bytes", len(msg.Body)))
	return nil
}

func newPublishing(event interface{}, at time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    at,
		Body:         body,
	}, nil
}

// Handler processes one delivery. A returned error nacks the message.
type Handler func(routingKey string, body []byte) error

// Consume declares a durable queue bound to the exchange with bindingKey
// (e.g. "order.#") and feeds its deliveries to handler on a dedicated channel
// until ctx is cancelled.
func (c *Client) Consume(ctx context.Context, queue, bindingKey string, handler Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(q.Name, bindingKey, c.exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("failed to bind queue %s to %s: %w", queue, c.exchange, err)
	}
	if err := ch.Qos(10, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("consuming events", zap.String("queue", q.Name), zap.String("binding", bindingKey))

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				c.dispatch(msg, handler)
			}
		}
	}()
	return nil
}

func (c *Client) dispatch(msg amqp.Delivery, handler Handler) {
	if err := handler(msg.RoutingKey, msg.Body); err != nil {
		c.logger.Error("failed to process event",
			zap.String("routing_key", msg.RoutingKey),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		// redelivered messages are dropped so a poison message cannot loop
		if nackErr := msg.Nack(false, !msg.Redelivered); nackErr != nil {
			c.logger.Error("failed to nack event", zap.Error(nackErr))
		}
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		c.logger.Error("failed to ack event", zap.Error(ackErr))
	}
}
