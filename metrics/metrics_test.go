package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCounters(t *testing.T) {
	r := NewRegistry()
	r.Register(Metric{Name: "lookups_total", Type: Counter})

	r.RecordCounter("lookups_total", 1, map[string]string{"status": "hit"})
	r.RecordCounter("lookups_total", 2, map[string]string{"status": "hit"})
	r.RecordCounter("lookups_total", 1, map[string]string{"status": "miss"})

	v, ok := r.Value("lookups_total", map[string]string{"status": "hit"})
	require.True(t, ok)
	assert.Equal(t, 3.0, v)

	snapshot := r.GetMetrics()["lookups_total"]
	require.Len(t, snapshot, 2)
	assert.Equal(t, "hit", snapshot[0].Labels["status"])
	assert.Equal(t, "miss", snapshot[1].Labels["status"])
}

func TestRegistryGauges(t *testing.T) {
	r := NewRegistry()
	r.Register(Metric{Name: "state", Type: Gauge})

	r.RecordGauge("state", 1, nil)
	r.RecordGauge("state", 4, nil)

	v, ok := r.Value("state", nil)
	require.True(t, ok)
	assert.Equal(t, 4.0, v)
}

func TestRegistryIgnoresUnknownAndMistyped(t *testing.T) {
	r := NewRegistry()
	r.Register(Metric{Name: "state", Type: Gauge})

	r.RecordCounter("state", 1, nil)
	r.RecordCounter("unknown", 1, nil)

	_, ok := r.Value("state", nil)
	assert.False(t, ok)
	assert.Empty(t, r.GetMetrics())
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.RecordCounter("x", 1, nil)
		r.RecordGauge("y", 1, nil)
	})
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	r.Register(Metric{Name: "n", Type: Counter})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RecordCounter("n", 1, nil)
			}
		}()
	}
	wg.Wait()

	v, _ := r.Value("n", nil)
	assert.Equal(t, 1000.0, v)
}
