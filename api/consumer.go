// File: api/consumer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Consumer is one push-channel connection as seen by the relay.
// Send must not block: implementations enqueue and return.
type Consumer interface {
	ID() string
	Open() bool
	Send(msg Message) error
}

// LiveConsumer is a Consumer that can be probed for liveness.
type LiveConsumer interface {
	Consumer
	// Ping issues a probe and moves the consumer to StateProbePending.
	Ping() error
	State() ConsumerState
	Done() <-chan struct{}
	Close() error
}
