// Package amqpbroker adapts an amqp091 connection to flowtest.Connection.
package amqpbroker

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bft-labs/flowrig/pkg/flowtest"
)

// Connection wraps an open *amqp.Connection. It does not own it.
type Connection struct {
	conn *amqp.Connection
}

var _ flowtest.Connection = (*Connection)(nil)

// New wraps conn.
func New(conn *amqp.Connection) *Connection {
	return &Connection{conn: conn}
}

// FromValue wraps a resource value holding an *amqp.Connection.
func FromValue(v any) (*Connection, error) {
	conn, ok := v.(*amqp.Connection)
	if !ok || conn == nil {
		return nil, fmt.Errorf("amqpbroker: value of type %T is not an *amqp091.Connection", v)
	}
	return New(conn), nil
}

// Channel opens a new AMQP channel.
func (c *Connection) Channel(context.Context) (flowtest.Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &channel{ch: ch, done: make(chan struct{}), stops: map[string]chan struct{}{}}, nil
}

type channel struct {
	ch   *amqp.Channel
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	stops map[string]chan struct{}
}

func (c *channel) DeclareExchange(_ context.Context, name, kind string) error {
	return c.ch.ExchangeDeclare(name, kind, true, false, false, false, nil)
}

func (c *channel) DeclareQueue(_ context.Context, name string) error {
	_, err := c.ch.QueueDeclare(name, true, false, false, false, nil)
	return err
}

func (c *channel) BindQueue(_ context.Context, queue, exchange, routingKey string) error {
	return c.ch.QueueBind(queue, routingKey, exchange, false, nil)
}

func (c *channel) Publish(ctx context.Context, exchange, routingKey string, msg flowtest.Message) error {
	p := msg.Properties
	return c.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:     p.ContentType,
		ContentEncoding: p.ContentEncoding,
		CorrelationId:   p.CorrelationID,
		MessageId:       p.MessageID,
		Type:            p.Type,
		AppId:           p.AppID,
		ReplyTo:         p.ReplyTo,
		Headers:         amqp.Table(p.Headers),
		Body:            msg.Body,
	})
}

func (c *channel) Consume(_ context.Context, queue, tag string) (<-chan flowtest.Delivery, error) {
	in, err := c.ch.Consume(queue, tag, true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	stop := make(chan struct{})
	c.mu.Lock()
	c.stops[tag] = stop
	c.mu.Unlock()

	out := make(chan flowtest.Delivery)
	go func() {
		defer close(out)
		for d := range in {
			select {
			case out <- convert(d):
			case <-stop:
				return
			case <-c.done:
				return
			}
		}
	}()
	return out, nil
}

func (c *channel) Cancel(tag string) error {
	c.mu.Lock()
	if stop, ok := c.stops[tag]; ok {
		close(stop)
		delete(c.stops, tag)
	}
	c.mu.Unlock()
	return c.ch.Cancel(tag, false)
}

func (c *channel) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.ch.Close()
}

func convert(d amqp.Delivery) flowtest.Delivery {
	return flowtest.Delivery{
		Exchange:   d.Exchange,
		RoutingKey: d.RoutingKey,
		Body:       d.Body,
		Properties: flowtest.Properties{
			ContentType:     d.ContentType,
			ContentEncoding: d.ContentEncoding,
			CorrelationID:   d.CorrelationId,
			MessageID:       d.MessageId,
			Type:            d.Type,
			AppID:           d.AppId,
			ReplyTo:         d.ReplyTo,
			Headers:         map[string]any(d.Headers),
		},
	}
}
