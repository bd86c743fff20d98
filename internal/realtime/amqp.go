package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQPConn carries events over a RabbitMQ topic exchange. The routing key is
// the event name; every process consumes through its own exclusive queue.
type AMQPConn struct {
	dispatcher

	url            string
	exchange       string
	reconnectDelay time.Duration
	log            zerolog.Logger

	mu    sync.Mutex
	ch    *amqp.Channel
	queue string
	bound map[string]bool
}

func NewAMQPConn(url, exchange string, reconnectDelay time.Duration, log zerolog.Logger) *AMQPConn {
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	return &AMQPConn{
		url:            url,
		exchange:       exchange,
		reconnectDelay: reconnectDelay,
		log:            log.With().Str("component", "realtime.amqp").Logger(),
	}
}

// Subscribe registers h and binds the queue to event when connected.
func (c *AMQPConn) Subscribe(event string, h Handler) Subscription {
	sub := c.dispatcher.Subscribe(event, h)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil && !c.bound[event] {
		if err := c.ch.QueueBind(c.queue, event, c.exchange, false, nil); err != nil {
			c.log.Warn().Err(err).Str("event", event).Msg("bind failed")
		} else {
			c.bound[event] = true
		}
	}
	return sub
}

// Run keeps the broker connection alive until ctx is cancelled.
func (c *AMQPConn) Run(ctx context.Context) error {
	delay := c.reconnectDelay
	for {
		err := c.session(ctx)
		c.setStatus(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Dur("retry_in", delay).Msg("broker session ended")
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (c *AMQPConn) session(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	c.mu.Lock()
	c.ch = ch
	c.queue = q.Name
	c.bound = make(map[string]bool)
	for _, ev := range c.events() {
		if err := ch.QueueBind(q.Name, ev, c.exchange, false, nil); err != nil {
			c.ch = nil
			c.mu.Unlock()
			return fmt.Errorf("bind %s: %w", ev, err)
		}
		c.bound[ev] = true
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.ch = nil
		c.mu.Unlock()
	}()

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.log.Info().Str("exchange", c.exchange).Str("queue", q.Name).Msg("connected")
	c.setStatus(true)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			return fmt.Errorf("connection closed: %v", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.dispatch(d.RoutingKey, d.Body)
		}
	}
}

func (c *AMQPConn) Emit(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return ErrNotConnected
	}

	return ch.PublishWithContext(ctx, c.exchange, event, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}
