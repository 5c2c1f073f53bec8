package flowtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Kind classifies an assertion failure.
type Kind int

const (
	UnexpectedDelivery Kind = iota + 1
	MissingDelivery
	PayloadMismatch
	PropertyMismatch
	LateDelivery
	DecodeFailure
	ChannelClosed
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case UnexpectedDelivery:
		return "unexpected delivery"
	case MissingDelivery:
		return "missing delivery"
	case PayloadMismatch:
		return "payload mismatch"
	case PropertyMismatch:
		return "property mismatch"
	case LateDelivery:
		return "late delivery"
	case DecodeFailure:
		return "decode failure"
	case ChannelClosed:
		return "channel closed"
	default:
		return "unknown"
	}
}

// AssertionError is a failed expectation on one queue.
type AssertionError struct {
	Queue  string
	Kind   Kind
	Detail string
}

func (e *AssertionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("queue %s: %s", e.Queue, e.Kind)
	}
	return fmt.Sprintf("queue %s: %s: %s", e.Queue, e.Kind, e.Detail)
}

// HasKind reports whether err, or any error it wraps, is an AssertionError
// of kind k.
func HasKind(err error, k Kind) bool {
	if ae, ok := err.(*AssertionError); ok {
		return ae.Kind == k
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, child := range u.Unwrap() {
			if HasKind(child, k) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return HasKind(u.Unwrap(), k)
	}
	return false
}

// envelope is the message body published for an Input and expected back
// on the output queue.
type envelope struct {
	Exchange   string          `json:"exchange"`
	RoutingKey string          `json:"routingKey"`
	Payload    json.RawMessage `json:"payload"`
}

func encodeEnvelope(in Input) ([]byte, error) {
	payload, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Exchange: in.Exchange, RoutingKey: in.RoutingKey, Payload: payload})
}

func decodePayload(body []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.Payload == nil {
		return nil, errors.New(`message has no "payload" field`)
	}
	var out any
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// normalize round-trips v through JSON so it compares equal to a decoded payload.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func payloadsEqual(want, got any) bool {
	return reflect.DeepEqual(want, got)
}

// payloadDiff renders a line diff of the indented JSON forms.
func payloadDiff(want, got any) string {
	w, _ := json.MarshalIndent(want, "", "  ")
	g, _ := json.MarshalIndent(got, "", "  ")

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(w)+"\n", string(g)+"\n")
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(line)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

const headerPrefix = "header:"

var propertyKeys = map[string]func(Properties) string{
	"content-type":     func(p Properties) string { return p.ContentType },
	"content-encoding": func(p Properties) string { return p.ContentEncoding },
	"correlation-id":   func(p Properties) string { return p.CorrelationID },
	"message-id":       func(p Properties) string { return p.MessageID },
	"type":             func(p Properties) string { return p.Type },
	"app-id":           func(p Properties) string { return p.AppID },
	"reply-to":         func(p Properties) string { return p.ReplyTo },
}

func knownProperty(key string) bool {
	if strings.HasPrefix(key, headerPrefix) {
		return len(key) > len(headerPrefix)
	}
	_, ok := propertyKeys[key]
	return ok
}

func propertyValue(p Properties, key string) (string, bool) {
	if name, ok := strings.CutPrefix(key, headerPrefix); ok {
		v, found := p.Headers[name]
		if !found {
			return "", false
		}
		return fmt.Sprint(v), true
	}
	return propertyKeys[key](p), true
}

// compareProperties returns one line per mismatching key, sorted.
func compareProperties(got Properties, want map[string]string) string {
	var mismatches []string
	for key, w := range want {
		g, found := propertyValue(got, key)
		switch {
		case !found:
			mismatches = append(mismatches, fmt.Sprintf("%s: missing, want %q", key, w))
		case g != w:
			mismatches = append(mismatches, fmt.Sprintf("%s: got %q, want %q", key, g, w))
		}
	}
	sort.Strings(mismatches)
	return strings.Join(mismatches, "; ")
}
