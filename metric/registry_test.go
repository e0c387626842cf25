package metric

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCounter(name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: "test counter",
	})
}

func TestRegistryRegisterAndUnregister(t *testing.T) {
	reg := NewRegistry()

	counter := newTestCounter("cache_hits_total")
	require.NoError(t, reg.RegisterCounter("cache", "hits", counter))

	counter.Add(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(counter))

	assert.True(t, reg.Unregister("cache", "hits"))
	assert.False(t, reg.Unregister("cache", "hits"), "second unregister finds nothing")
}

func TestRegistryDuplicateKey(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.RegisterCounter("cache", "hits", newTestCounter("a_total")))
	err := reg.RegisterCounter("cache", "hits", newTestCounter("b_total"))
	assert.Error(t, err)
}

func TestRegistryPrometheusConflict(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.RegisterCounter("a", "hits", newTestCounter("shared_total")))
	// different key, same Prometheus name
	err := reg.RegisterCounter("b", "hits", newTestCounter("shared_total"))
	assert.Error(t, err)
}

func TestRegistryUnregisterComponent(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.RegisterCounter("cache", "hits", newTestCounter("hits_total")))
	require.NoError(t, reg.RegisterCounter("cache", "misses", newTestCounter("misses_total")))
	require.NoError(t, reg.RegisterCounter("bus", "sent", newTestCounter("sent_total")))

	assert.Equal(t, 2, reg.UnregisterComponent("cache"))
	assert.False(t, reg.Unregister("cache", "hits"))
	assert.True(t, reg.Unregister("bus", "sent"), "other components untouched")
}

func TestCoreMetricsRegistered(t *testing.T) {
	reg := NewRegistry()
	core := reg.Core()

	core.SetComponentState("cache", 3)
	core.ObserveStart("cache", 120*time.Millisecond, false)
	core.ObserveStart("bus", 50*time.Millisecond, true)
	core.ObserveReload(7, nil)

	assert.Equal(t, float64(3),
		testutil.ToFloat64(core.ComponentState.WithLabelValues("cache")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(core.StartFailures.WithLabelValues("bus")))
	assert.Equal(t, float64(7), testutil.ToFloat64(core.ConfigVersion))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(core.ConfigReloads.WithLabelValues("success")))
}

func TestHandlerExposition(t *testing.T) {
	reg := NewRegistry()
	reg.Core().SetComponentState("cache", 3)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	reg.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "runtimekit_component_state"),
		"exposition must include core metrics")
}
