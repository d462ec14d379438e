// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

// MessageKind tells binary camera frames apart from textual control messages.
type MessageKind uint8

const (
	BinaryMessage MessageKind = iota + 1
	TextMessage
)

func (k MessageKind) String() string {
	switch k {
	case BinaryMessage:
		return "binary"
	case TextMessage:
		return "text"
	default:
		return "unknown"
	}
}

// Message is one outbound push-channel message.
type Message struct {
	Kind    MessageKind
	Payload []byte
}

// Inbound is one message received from a push-channel peer.
type Inbound struct {
	Sender  string
	Kind    MessageKind
	Payload []byte
}

// ConsumerState enumerates the liveness state of a push consumer.
type ConsumerState int32

const (
	StateConnecting ConsumerState = iota
	StateActive
	StateProbePending
	StateClosed
)

func (s ConsumerState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateProbePending:
		return "probe-pending"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
