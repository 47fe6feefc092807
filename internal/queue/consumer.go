// Package queue contains the background consumer that drains the
// notification queues.  Message formatting and delivery to people is
// handled by other systems; this consumer records each message in the
// structured log so operators can follow registrations and payment
// diagnostics in one place.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer drains the registration and diagnostics queues.
type Consumer struct {
	URL string
	Log *zap.Logger
}

// Run connects to RabbitMQ, declares both queues (durable) and consumes
// until ctx is done.  Broker failures trigger a reconnect with
// exponential backoff; a message that cannot be decoded is rejected
// without requeue so the consumer never spins on it.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn("consumer: set QoS failed", zap.Error(err))
	}

	registrations, err := consume(ch, RegistrationCreatedQueue)
	if err != nil {
		return err
	}
	diagnostics, err := consume(ch, PaymentDiagnosticsQueue)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-registrations:
			if !ok {
				return errors.New("registration deliveries closed")
			}
			c.settle(d, c.HandleRegistration(d.Body))
		case d, ok := <-diagnostics:
			if !ok {
				return errors.New("diagnostic deliveries closed")
			}
			c.settle(d, c.HandleDiagnostic(d.Body))
		}
	}
}

func consume(ch *amqp.Channel, queue string) (<-chan amqp.Delivery, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("queue declare %s: %w", queue, err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue consume %s: %w", queue, err)
	}
	return msgs, nil
}

func (c *Consumer) settle(d amqp.Delivery, err error) {
	if err != nil {
		c.Log.Error("consumer: handle message failed", zap.String("queue", d.RoutingKey), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// HandleRegistration logs one registration.created message.
func (c *Consumer) HandleRegistration(body []byte) error {
	var ev RegistrationCreatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	c.Log.Info("registration created",
		zap.String("message_id", ev.MessageID),
		zap.String("collection", ev.Collection),
		zap.String("public_id", ev.PublicID),
		zap.String("target", ev.TargetName),
		zap.String("option", ev.OptionName),
		zap.String("method", ev.Method),
		zap.Int64("amount", ev.Amount),
	)
	return nil
}

// HandleDiagnostic logs one payment.diagnostics message.
func (c *Consumer) HandleDiagnostic(body []byte) error {
	var ev PaymentDiagnosticEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	c.Log.Warn("payment diagnostic",
		zap.String("message_id", ev.MessageID),
		zap.String("env", ev.Env),
		zap.String("event_id", ev.EventID),
		zap.String("event_type", ev.EventType),
		zap.String("payment_intent", ev.IntentID),
		zap.String("session", ev.SessionID),
		zap.String("reason", ev.Reason),
	)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
