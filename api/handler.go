// File: api/handler.go
// Package api defines Handler interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Handler processes inbound push-channel messages.
type Handler interface {
	Handle(in Inbound) error
}
