package adapters_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-camrelay/adapters"
)

func TestControlAdapterBasic(t *testing.T) {
	ctrl := adapters.NewControlAdapter()
	require.Empty(t, ctrl.GetConfig(), "expected empty config on init")

	require.NoError(t, ctrl.SetConfig(map[string]any{"k": 1}))
	assert.Equal(t, 1, ctrl.GetConfig()["k"])

	ctrl.Add("frames.in", 3)
	ctrl.SetMetric("label", "v")
	ctrl.RegisterDebugProbe("consumers", func() any { return 4 })

	stats := ctrl.Stats()
	assert.Equal(t, int64(3), stats["frames.in"])
	assert.Equal(t, "v", stats["label"])
	assert.Equal(t, 4, stats["debug.consumers"])
	assert.Contains(t, stats, "debug.platform.cpus")
	assert.Equal(t, int64(3), ctrl.Counter("frames.in"))
	assert.Equal(t, uint64(1), stats["config.version"])
}
