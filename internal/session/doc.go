// Package session
// Author: momentics <momentics@gmail.com>
//
// Registry of connected push-channel consumers.
// Membership is sharded by consumer ID so that joins and leaves on different
// connections rarely contend. Iteration works on a snapshot and never holds a
// lock while calling back into user code.

package session
