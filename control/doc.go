// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, configuration snapshot and debug introspection layer
// backing the relay's diagnostic endpoints.
//
// Provides concurrent-safe state handling primitives including:
//   - Immutable snapshot config reads
//   - Counters for frames, chat traffic and delivery failures
//   - Debug probes, including platform resource usage
package control
