// Package flowtest verifies message flows end to end.
//
// A flow test publishes a stimulus and watches a set of queues. Each queue
// races its first delivery against a timer:
//
//   - the expected queue must receive a message whose decoded payload (and
//     optionally a subset of its properties) matches the expectation;
//   - every other queue must stay silent until its timer fires;
//   - a delivery on a queue whose race already settled fails as a late
//     delivery.
//
// The stimulus body is a JSON envelope {"exchange", "routingKey", "payload"}
// and the payload compared on the output queue is read from the same
// envelope field.
//
// The broker is reached through [Connection] and [Channel]; package
// amqpbroker adapts an amqp091 connection.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package flowtest
