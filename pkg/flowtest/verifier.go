package flowtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/flowrig/pkg/fault"
	"github.com/bft-labs/flowrig/pkg/log"
)

const (
	// DefaultTimeout is how long each queue waits for a delivery.
	DefaultTimeout = 10 * time.Second

	// DefaultLateGrace is how long queues keep listening after every race
	// settled.
	DefaultLateGrace = 250 * time.Millisecond
)

// Input is the stimulus of a flow test.
type Input struct {
	Exchange     string
	ExchangeType string
	RoutingKey   string
	Payload      any
	Properties   Properties

	// Trigger replaces publishing the envelope, for flows started by an
	// external event.
	Trigger func(ctx context.Context) error
}

// Binding declares a queue and binds it before the stimulus is sent.
type Binding struct {
	Exchange     string
	ExchangeType string
	Queue        string
	RoutingKey   string
}

// Output is the expectation of a flow test.
type Output struct {
	// Queues are observed for the duration of the test.
	Queues []string

	// ExpectedQueue must receive exactly one message; every other queue must
	// stay silent. Empty means all queues must stay silent.
	ExpectedQueue string

	ExpectedPayload any

	// ExpectedProperties is compared as a subset, keyed by content-type,
	// content-encoding, correlation-id, message-id, type, app-id, reply-to
	// or header:<name>.
	ExpectedProperties map[string]string

	Bindings []Binding
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTimeout sets the per-queue delivery timeout.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithLateGrace sets how long queues keep listening for late deliveries
// after every race settled. Zero stops listening as soon as they settle.
func WithLateGrace(d time.Duration) Option {
	return func(v *Verifier) {
		if d >= 0 {
			v.lateGrace = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(v *Verifier) { v.logger = log.OrNoop(l) }
}

// Verifier runs flow tests.
type Verifier struct {
	timeout   time.Duration
	lateGrace time.Duration
	logger    log.Logger
	newTag    func() string
}

// NewVerifier creates a Verifier.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		timeout:   DefaultTimeout,
		lateGrace: DefaultLateGrace,
		logger:    log.NoopLogger{},
		newTag:    func() string { return "flowrig-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// TestFlow runs a flow test with a default Verifier.
func TestFlow(ctx context.Context, conn Connection, in Input, out Output) error {
	return NewVerifier().TestFlow(ctx, conn, in, out)
}

type race struct {
	queue      string
	expect     bool
	deliveries <-chan Delivery
	verdict    error
	late       []error
}

// TestFlow publishes in and checks every queue of out against a timer.
//
// A queue that is not expected to receive fails on any delivery. The
// expected queue fails when its timer fires first, or when the decoded
// payload or the listed properties differ. Any delivery on a queue whose
// race already settled is a late delivery, as long as it arrives before
// the late grace period following the last settlement ends. The result is nil, a single *AssertionError, or a
// *fault.CompositeError of them. Channels and consumers are released
// exactly once on every path.
func (v *Verifier) TestFlow(ctx context.Context, conn Connection, in Input, out Output) (err error) {
	if err := validate(conn, out); err != nil {
		return err
	}
	want, err := normalize(out.ExpectedPayload)
	if err != nil {
		return fault.Configf("output.expectedPayload", "%v", err)
	}
	var body []byte
	if in.Trigger == nil {
		if body, err = encodeEnvelope(in); err != nil {
			return fault.Configf("input.payload", "%v", err)
		}
	}

	s := &session{logger: v.logger}
	defer func() {
		if rerr := s.release(); rerr != nil {
			err = fault.NewComposite("flow test failed", err, rerr)
		}
	}()

	inCh, err := conn.Channel(ctx)
	if err != nil {
		return fmt.Errorf("open input channel: %w", err)
	}
	s.channels = append(s.channels, inCh)

	if err := declare(ctx, inCh, in, out.Bindings); err != nil {
		return err
	}

	races := make([]*race, 0, len(out.Queues))
	for _, q := range out.Queues {
		ch, err := conn.Channel(ctx)
		if err != nil {
			return fmt.Errorf("open channel for queue %s: %w", q, err)
		}
		s.channels = append(s.channels, ch)

		tag := v.newTag()
		deliveries, err := ch.Consume(ctx, q, tag)
		if err != nil {
			return fmt.Errorf("consume queue %s: %w", q, err)
		}
		s.consumers = append(s.consumers, consumer{ch: ch, tag: tag})
		races = append(races, &race{queue: q, expect: q == out.ExpectedQueue, deliveries: deliveries})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var pending sync.WaitGroup
	pending.Add(len(races))
	allSettled := make(chan struct{})
	go func() {
		pending.Wait()
		close(allSettled)
	}()

	g, gctx := errgroup.WithContext(runCtx)
	for _, r := range races {
		r := r
		g.Go(func() error {
			return v.run(gctx, r, want, out.ExpectedProperties, &pending, allSettled)
		})
	}

	if perr := v.stimulate(ctx, inCh, in, body); perr != nil {
		cancel()
		_ = g.Wait()
		return perr
	}

	if werr := g.Wait(); werr != nil {
		return fmt.Errorf("flow test interrupted: %w", werr)
	}

	var failures []error
	for _, r := range races {
		if r.verdict != nil {
			failures = append(failures, r.verdict)
		}
	}
	for _, r := range races {
		failures = append(failures, r.late...)
	}
	switch len(failures) {
	case 0:
		return nil
	case 1:
		return failures[0]
	default:
		return fault.NewComposite("flow test failed", failures...)
	}
}

func (v *Verifier) stimulate(ctx context.Context, ch Channel, in Input, body []byte) error {
	if in.Trigger != nil {
		if err := in.Trigger(ctx); err != nil {
			return fmt.Errorf("trigger flow: %w", err)
		}
		return nil
	}
	props := in.Properties
	if props.ContentType == "" {
		props.ContentType = "application/json"
	}
	if err := ch.Publish(ctx, in.Exchange, in.RoutingKey, Message{Body: body, Properties: props}); err != nil {
		return fmt.Errorf("publish to %s/%s: %w", in.Exchange, in.RoutingKey, err)
	}
	v.logger.Debug("stimulus published",
		log.String("exchange", in.Exchange),
		log.String("routing_key", in.RoutingKey))
	return nil
}

// run settles one race, then keeps listening for late deliveries until the
// grace period after the last settlement ends.
func (v *Verifier) run(ctx context.Context, r *race, want any, props map[string]string, pending *sync.WaitGroup, allSettled <-chan struct{}) error {
	timer := time.NewTimer(v.timeout)
	defer timer.Stop()

	settled := false
	defer func() {
		if !settled {
			pending.Done()
		}
	}()

	select {
	case d, ok := <-r.deliveries:
		if !ok {
			r.verdict = &AssertionError{Queue: r.queue, Kind: ChannelClosed, Detail: "consumer closed before a delivery"}
		} else {
			r.verdict = r.judge(d, want, props)
		}
	case <-timer.C:
		if r.expect {
			r.verdict = &AssertionError{Queue: r.queue, Kind: MissingDelivery,
				Detail: fmt.Sprintf("no message within %s", v.timeout)}
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	settled = true
	pending.Done()

	v.logger.Debug("queue settled",
		log.String("queue", r.queue),
		log.Bool("expected", r.expect),
		log.Bool("ok", r.verdict == nil))

	var graceEnd <-chan time.Time
	for {
		select {
		case d, ok := <-r.deliveries:
			if !ok {
				return nil
			}
			r.late = append(r.late, &AssertionError{Queue: r.queue, Kind: LateDelivery,
				Detail: fmt.Sprintf("message with routing key %q arrived after the queue settled", d.RoutingKey)})
		case <-allSettled:
			if v.lateGrace == 0 {
				return nil
			}
			allSettled = nil
			graceEnd = time.After(v.lateGrace)
		case <-graceEnd:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *race) judge(d Delivery, want any, props map[string]string) error {
	if !r.expect {
		return &AssertionError{Queue: r.queue, Kind: UnexpectedDelivery,
			Detail: fmt.Sprintf("received a message with routing key %q", d.RoutingKey)}
	}
	got, err := decodePayload(d.Body)
	if err != nil {
		return &AssertionError{Queue: r.queue, Kind: DecodeFailure, Detail: err.Error()}
	}
	if !payloadsEqual(want, got) {
		return &AssertionError{Queue: r.queue, Kind: PayloadMismatch, Detail: "\n" + payloadDiff(want, got)}
	}
	if msg := compareProperties(d.Properties, props); msg != "" {
		return &AssertionError{Queue: r.queue, Kind: PropertyMismatch, Detail: msg}
	}
	return nil
}

func validate(conn Connection, out Output) error {
	if conn == nil {
		return fault.Configf("connection", "is required")
	}
	if len(out.Queues) == 0 {
		return fault.Configf("output.queues", "at least one queue is required")
	}
	seen := make(map[string]struct{}, len(out.Queues))
	for _, q := range out.Queues {
		if q == "" {
			return fault.Configf("output.queues", "queue name is empty")
		}
		if _, dup := seen[q]; dup {
			return fault.Configf("output.queues", "duplicate queue %q", q)
		}
		seen[q] = struct{}{}
	}
	if out.ExpectedQueue != "" {
		if _, ok := seen[out.ExpectedQueue]; !ok {
			return fault.Configf("output.expectedQueue", "%q is not one of the observed queues", out.ExpectedQueue)
		}
	}
	for key := range out.ExpectedProperties {
		if !knownProperty(key) {
			return fault.Configf("output.expectedProperties", "unknown property %q", key)
		}
	}
	for i, b := range out.Bindings {
		if b.Queue == "" || b.Exchange == "" {
			return fault.Configf(fmt.Sprintf("output.bindings[%d]", i), "queue and exchange are required")
		}
	}
	return nil
}

func declare(ctx context.Context, ch Channel, in Input, bindings []Binding) error {
	if in.Exchange != "" && in.ExchangeType != "" {
		if err := ch.DeclareExchange(ctx, in.Exchange, in.ExchangeType); err != nil {
			return fmt.Errorf("declare exchange %s: %w", in.Exchange, err)
		}
	}
	for _, b := range bindings {
		if b.ExchangeType != "" {
			if err := ch.DeclareExchange(ctx, b.Exchange, b.ExchangeType); err != nil {
				return fmt.Errorf("declare exchange %s: %w", b.Exchange, err)
			}
		}
		if err := ch.DeclareQueue(ctx, b.Queue); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.Queue, err)
		}
		if err := ch.BindQueue(ctx, b.Queue, b.Exchange, b.RoutingKey); err != nil {
			return fmt.Errorf("bind queue %s to %s/%s: %w", b.Queue, b.Exchange, b.RoutingKey, err)
		}
	}
	return nil
}

type consumer struct {
	ch  Channel
	tag string
}

// session owns the channels and consumers opened by one flow test.
type session struct {
	logger    log.Logger
	channels  []Channel
	consumers []consumer
	once      sync.Once
}

func (s *session) release() error {
	var errs []error
	s.once.Do(func() {
		for _, c := range s.consumers {
			if err := c.ch.Cancel(c.tag); err != nil {
				errs = append(errs, fmt.Errorf("cancel consumer %s: %w", c.tag, err))
			}
		}
		for i := len(s.channels) - 1; i >= 0; i-- {
			if err := s.channels[i].Close(); err != nil {
				errs = append(errs, fmt.Errorf("close channel: %w", err))
			}
		}
		if len(errs) > 0 {
			s.logger.Warn("flow test release failed", log.Int("failures", len(errs)))
		}
	})
	return fault.NewComposite("failed to release flow test channels", errs...)
}
