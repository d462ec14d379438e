// File: api/frame.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "time"

// Frame is one JPEG-encoded image as received from a producer.
// The relay never looks inside Data. A Frame must not be mutated once
// it has been handed to a FrameStore or a consumer.
type Frame struct {
	Data       []byte
	ReceivedAt time.Time
}

// NewFrame wraps data, taking ownership of the slice.
func NewFrame(data []byte) *Frame {
	return &Frame{Data: data, ReceivedAt: time.Now()}
}

// Len returns the payload size in bytes.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}
