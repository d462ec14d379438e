// File: protocol/upgrader.go
// Package protocol implements HTTP→WebSocket upgrade for the push channel.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// NewUpgrader returns an upgrader accepting any origin. Producers are camera
// devices and consumers are arbitrary browsers; there is no access control.
func NewUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
}

// IsUpgrade reports whether r asks for a websocket.
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}
