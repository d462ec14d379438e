package control_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/hioload-camrelay/control"
)

func TestMetricsRegistryCounters(t *testing.T) {
	m := control.NewMetricsRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Add("frames.in", 2)
		}()
	}
	wg.Wait()
	m.Set("label", "x")

	assert.Equal(t, int64(100), m.Counter("frames.in"))
	assert.Equal(t, int64(0), m.Counter("missing"))
	snap := m.GetSnapshot()
	assert.Equal(t, int64(100), snap["frames.in"])
	assert.Equal(t, "x", snap["label"])
}

func TestConfigStoreSnapshotIsCopy(t *testing.T) {
	cs := control.NewConfigStore()
	cs.SetConfig(map[string]any{"port": 3000})
	snap := cs.GetSnapshot()
	snap["port"] = 1
	assert.Equal(t, 3000, cs.GetSnapshot()["port"])

	assert.Equal(t, uint64(1), cs.Version())
	assert.Equal(t, uint64(2), cs.SetConfig(map[string]any{"host": ""}))
}

func TestDebugProbesPlatform(t *testing.T) {
	dp := control.NewDebugProbes()
	control.RegisterPlatformProbes(dp)
	dp.RegisterProbe("custom", func() any { return 7 })
	state := dp.DumpState()
	assert.Equal(t, 7, state["custom"])
	assert.Contains(t, state, "platform.cpus")
	assert.Contains(t, state, "platform.goroutines")
}

func TestDebugProbePanicIsReported(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("broken", func() any { panic("boom") })
	dp.RegisterProbe("ok", func() any { return true })

	state := dp.DumpState()
	assert.Equal(t, "probe panic: boom", state["broken"])
	assert.Equal(t, true, state["ok"])
	assert.Equal(t, []string{"broken", "ok"}, dp.Names())
}
