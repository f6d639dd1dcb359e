package notify

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// AMQPNotifier publishes booking messages to a durable queue. A channel or
// connection dropped by the broker is reopened on the next publish.
type AMQPNotifier struct {
	url   string
	queue string
	dial  func(url string) (*amqp.Connection, error)

	// one publisher at a time; amqp channels are not safe for concurrent use
	sem     chan struct{}
	conn    *amqp.Connection
	channel *amqp.Channel
}

func newAMQPNotifier(url, queue string) *AMQPNotifier {
	return &AMQPNotifier{
		url:   url,
		queue: queue,
		dial:  amqp.Dial,
		sem:   make(chan struct{}, 1),
	}
}

func NewAMQPNotifier(url, queue string) (*AMQPNotifier, error) {
	n := newAMQPNotifier(url, queue)
	if err := n.open(); err != nil {
		return nil, err
	}
	return n, nil
}

// open (re)establishes the connection and channel. Callers hold sem.
func (n *AMQPNotifier) open() error {
	if n.conn == nil || n.conn.IsClosed() {
		conn, err := n.dial(n.url)
		if err != nil {
			return fmt.Errorf("notify: dial amqp: %w", err)
		}
		n.conn = conn
		n.channel = nil
	}
	if n.channel != nil && !n.channel.IsClosed() {
		return nil
	}

	channel, err := n.conn.Channel()
	if err != nil {
		return fmt.Errorf("notify: open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		channel.Close()
		return fmt.Errorf("notify: declare queue %s: %w", n.queue, err)
	}
	n.channel = channel
	return nil
}

func (n *AMQPNotifier) acquire(ctx context.Context) error {
	select {
	case n.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *AMQPNotifier) release() {
	<-n.sem
}

func (n *AMQPNotifier) Notify(ctx context.Context, a appointment.Appointment) error {
	body, err := encode(a)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    a.ID.String(),
		Type:         appointment.EventAppointmentBooked,
		Body:         body,
	}

	if err := n.acquire(ctx); err != nil {
		return err
	}
	defer n.release()

	if err := n.open(); err != nil {
		return err
	}
	err = n.channel.PublishWithContext(ctx, "", n.queue, false, false, msg)
	if err != nil && (errors.Is(err, amqp.ErrClosed) || n.channel.IsClosed()) {
		// broker dropped us between the check and the publish
		if err := n.open(); err != nil {
			return err
		}
		err = n.channel.PublishWithContext(ctx, "", n.queue, false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("notify: publish to %s: %w", n.queue, err)
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	if n == nil {
		return nil
	}
	n.sem <- struct{}{}
	defer n.release()

	var err error
	if n.channel != nil && !n.channel.IsClosed() {
		err = n.channel.Close()
	}
	if n.conn != nil && !n.conn.IsClosed() {
		err = errors.Join(err, n.conn.Close())
	}
	n.channel, n.conn = nil, nil
	return err
}
