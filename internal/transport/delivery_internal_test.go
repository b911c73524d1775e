package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluemock/internal/config"
)

func TestStartWorkerTwicePanics(t *testing.T) {
	adapter := NewAdapter(0)
	device, err := adapter.NewDevice("12:34:56:78:9A:BC")
	require.NoError(t, err)

	cfg := config.Default()
	tr, err := New(device, A2DPSource, "/source/1", Options{
		Owner:  ":test",
		SBC:    DefaultSBC(),
		Audio:  cfg.Audio,
		Timing: cfg.Timing,
	})
	require.NoError(t, err)
	defer tr.Destroy()

	tr.startWorker()
	assert.Panics(t, func() { tr.startWorker() })
}

func TestStartWorkerRebindsAfterExit(t *testing.T) {
	adapter := NewAdapter(0)
	device, err := adapter.NewDevice("12:34:56:78:9A:BC")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Timing.IdlePollMs = 5
	tr, err := New(device, A2DPSource, "/source/1", Options{
		Owner:  ":test",
		SBC:    DefaultSBC(),
		Audio:  cfg.Audio,
		Timing: cfg.Timing,
	})
	require.NoError(t, err)
	defer tr.Destroy()

	tr.startWorker()
	tr.StopWorker()
	require.False(t, tr.WorkerRunning())

	assert.NotPanics(t, func() { tr.startWorker() })
	tr.StopWorker()
}

func TestEnsureWorkerIsIdempotent(t *testing.T) {
	adapter := NewAdapter(0)
	device, err := adapter.NewDevice("12:34:56:78:9A:BC")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Timing.IdlePollMs = 5
	tr, err := New(device, A2DPSource, "/source/1", Options{
		Owner:  ":test",
		SBC:    DefaultSBC(),
		Audio:  cfg.Audio,
		Timing: cfg.Timing,
	})
	require.NoError(t, err)
	defer tr.Destroy()

	tr.ensureWorker()
	first := tr.done
	assert.NotPanics(t, func() { tr.ensureWorker() })
	assert.Equal(t, first, tr.done, "ensure must keep the bound worker")
	assert.True(t, tr.WorkerRunning())
}
