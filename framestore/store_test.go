package framestore_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-camrelay/api"
	"github.com/momentics/hioload-camrelay/framestore"
)

func TestStoreEmpty(t *testing.T) {
	s := framestore.New()
	f, ok := s.Current()
	assert.False(t, ok)
	assert.Nil(t, f)
	assert.False(t, s.Stats().HasFrame)
}

func TestStoreLastWriteWins(t *testing.T) {
	s := framestore.New()
	s.Replace(api.NewFrame([]byte("first")))
	s.Replace(api.NewFrame([]byte("second")))

	f, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, []byte("second"), f.Data)

	st := s.Stats()
	assert.Equal(t, uint64(2), st.Replaced)
	assert.Equal(t, len("second"), st.LastSize)
}

func TestStoreIgnoresNil(t *testing.T) {
	s := framestore.New()
	s.Replace(api.NewFrame([]byte("x")))
	s.Replace(nil)
	f, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, []byte("x"), f.Data)
}

// Each writer publishes frames filled with a single byte value; a reader must
// never observe a frame mixing two values.
func TestStoreNoTornReads(t *testing.T) {
	s := framestore.New()
	const size = 4096
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(fill byte) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.Replace(api.NewFrame(bytes.Repeat([]byte{fill}, size)))
			}
		}(byte('a' + w))
	}

	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				f, ok := s.Current()
				if !ok {
					continue
				}
				if len(f.Data) != size {
					t.Errorf("frame size %d, want %d", len(f.Data), size)
					return
				}
				first := f.Data[0]
				if bytes.Count(f.Data, []byte{first}) != size {
					t.Errorf("torn frame observed")
					return
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()
	assert.Equal(t, uint64(2000), s.Stats().Replaced)
}
