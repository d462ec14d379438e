// File: api/events.go
// Package api defines consumer lifecycle events.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// PresenceEvent is raised when a push consumer joins or leaves.
type PresenceEvent struct {
	ConsumerID string
	Joined     bool
}
