// Package notify publishes domain events to RabbitMQ.  Publishing is
// fire-and-forget: failures are logged and never reach the request that
// caused them.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/queue"
)

// Error is the error class for publishing failures.
var Error = errs.Class("notify")

// Sink delivers one message body to a queue.
type Sink interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// AMQPSink publishes to the default exchange with the queue name as
// routing key.  Each publish opens its own connection, which keeps the
// sink stateless at the low rate registrations arrive.
type AMQPSink struct {
	URL string
}

func (s *AMQPSink) Publish(ctx context.Context, name string, body []byte) error {
	conn, err := amqp.Dial(s.URL)
	if err != nil {
		return Error.New("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return Error.New("channel open: %v", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return Error.New("queue declare: %v", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", name, false, false, pub); err != nil {
		return Error.New("publish: %v", err)
	}
	return nil
}

// Dispatcher turns domain events into queue messages.
type Dispatcher struct {
	log     *zap.Logger
	sink    Sink
	timeout time.Duration
}

// NewDispatcher returns a Dispatcher publishing through sink.  A nil
// sink drops every event.
func NewDispatcher(log *zap.Logger, sink Sink) *Dispatcher {
	return &Dispatcher{log: log, sink: sink, timeout: 3 * time.Second}
}

// RegistrationCreated publishes a registration.created message.
func (d *Dispatcher) RegistrationCreated(ctx context.Context, ev queue.RegistrationCreatedEvent) {
	if ev.MessageID == "" {
		ev.MessageID = uuid.NewString()
	}
	d.publish(ctx, queue.RegistrationCreatedQueue, ev)
}

// PaymentDiagnostic publishes a payment.diagnostics message.
func (d *Dispatcher) PaymentDiagnostic(ctx context.Context, ev queue.PaymentDiagnosticEvent) {
	if ev.MessageID == "" {
		ev.MessageID = uuid.NewString()
	}
	d.publish(ctx, queue.PaymentDiagnosticsQueue, ev)
}

func (d *Dispatcher) publish(ctx context.Context, name string, v any) {
	if d == nil || d.sink == nil {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		d.log.Error("notify: marshal failed", zap.String("queue", name), zap.Error(err))
		return
	}
	// The caller's request may already be finishing; the message should
	// still go out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	if err := d.sink.Publish(ctx, name, body); err != nil {
		d.log.Warn("notify: publish failed", zap.String("queue", name), zap.Error(err))
	}
}
