package flowtest

import "context"

// Connection opens channels on a message broker.
type Connection interface {
	Channel(ctx context.Context) (Channel, error)
}

// Channel is the subset of broker channel operations the verifier needs.
type Channel interface {
	DeclareExchange(ctx context.Context, name, kind string) error
	DeclareQueue(ctx context.Context, name string) error
	BindQueue(ctx context.Context, queue, exchange, routingKey string) error
	Publish(ctx context.Context, exchange, routingKey string, msg Message) error

	// Consume starts a consumer tagged tag. The returned channel is closed
	// when the consumer is canceled or the channel is closed.
	Consume(ctx context.Context, queue, tag string) (<-chan Delivery, error)
	Cancel(tag string) error
	Close() error
}

// Properties are the message properties the verifier publishes and compares.
type Properties struct {
	ContentType     string
	ContentEncoding string
	CorrelationID   string
	MessageID       string
	Type            string
	AppID           string
	ReplyTo         string
	Headers         map[string]any
}

// Message is an outgoing message.
type Message struct {
	Body       []byte
	Properties Properties
}

// Delivery is a message received by a consumer.
type Delivery struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Properties Properties
}
