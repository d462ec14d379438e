// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for the relay hot paths.

package benchmarks

import (
	"fmt"
	"io"
	"sync/atomic"
	"testing"

	"github.com/momentics/hioload-camrelay/api"
	"github.com/momentics/hioload-camrelay/framestore"
	"github.com/momentics/hioload-camrelay/internal/session"
	"github.com/momentics/hioload-camrelay/relay"
	"github.com/momentics/hioload-camrelay/stream"
)

// discard is a consumer that accepts and forgets every message.
type discard struct {
	id   string
	sent atomic.Int64
}

func (d *discard) ID() string { return d.id }
func (d *discard) Open() bool { return true }
func (d *discard) Send(api.Message) error {
	d.sent.Add(1)
	return nil
}

func jpegSized(n int) []byte {
	b := make([]byte, n)
	b[0], b[1] = 0xFF, 0xD8
	return b
}

// BenchmarkFrameStoreParallel mixes one writer per eight readers.
func BenchmarkFrameStoreParallel(b *testing.B) {
	store := framestore.New()
	frame := api.NewFrame(jpegSized(64 << 10))
	store.Replace(frame)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%8 == 0 {
				store.Replace(frame)
			} else if _, ok := store.Current(); !ok {
				b.Error("frame lost")
				return
			}
			i++
		}
	})
}

// BenchmarkRelayFanout measures one producer frame reaching N consumers.
func BenchmarkRelayFanout(b *testing.B) {
	for _, n := range []int{1, 16, 256, 4096} {
		b.Run(fmt.Sprintf("consumers=%d", n), func(b *testing.B) {
			reg := session.NewRegistry(16)
			for i := 0; i < n; i++ {
				reg.Register(&discard{id: fmt.Sprintf("c-%d", i)})
			}
			r := relay.New(reg, framestore.New())
			data := jpegSized(32 << 10)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				res := r.HandleFrame("producer", data)
				if res.Delivered != n {
					b.Fatalf("delivered %d of %d", res.Delivered, n)
				}
			}
		})
	}
}

// BenchmarkRegistryChurn registers and unregisters while iterating.
func BenchmarkRegistryChurn(b *testing.B) {
	reg := session.NewRegistry(16)
	for i := 0; i < 1024; i++ {
		reg.Register(&discard{id: fmt.Sprintf("base-%d", i)})
	}
	var seq atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			id := seq.Add(1)
			h := reg.Register(&discard{id: fmt.Sprintf("churn-%d", id)})
			reg.ForEachExcept("", func(api.Consumer) {})
			h.Unregister()
		}
	})
}

// BenchmarkWritePart measures multipart framing of a typical frame.
func BenchmarkWritePart(b *testing.B) {
	data := jpegSized(48 << 10)
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := stream.WritePart(io.Discard, data); err != nil {
			b.Fatal(err)
		}
	}
}
