package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rterrors "github.com/c360/runtimekit/errors"
)

func testSnapshot(t *testing.T, values map[string]any) *Snapshot {
	t.Helper()
	return newSnapshot(1, values)
}

func TestSnapshotTypedGetters(t *testing.T) {
	snap := testSnapshot(t, map[string]any{
		"server.host":    "localhost",
		"server.port":    8080,
		"server.debug":   true,
		"server.ratio":   0.75,
		"server.timeout": "250ms",
	})

	host, err := snap.String("server.host")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)

	port, err := snap.Int("server.port")
	require.NoError(t, err)
	assert.Equal(t, int64(8080), port)

	debug, err := snap.Bool("server.debug")
	require.NoError(t, err)
	assert.True(t, debug)

	ratio, err := snap.Float("server.ratio")
	require.NoError(t, err)
	assert.Equal(t, 0.75, ratio)

	timeout, err := snap.Duration("server.timeout")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, timeout)
}

func TestSnapshotMissingPath(t *testing.T) {
	snap := testSnapshot(t, map[string]any{"a": 1})

	_, err := snap.String("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, rterrors.ErrConfigValidation)
}

func TestSnapshotTypeMismatch(t *testing.T) {
	snap := testSnapshot(t, map[string]any{"server.port": "not a number"})

	_, err := snap.Int("server.port")
	require.Error(t, err)
	assert.ErrorIs(t, err, rterrors.ErrConfigValidation)
}

func TestSnapshotIntAcceptsWholeFloat(t *testing.T) {
	// YAML and JSON decoders often surface integers as float64.
	snap := testSnapshot(t, map[string]any{"port": float64(9090)})

	port, err := snap.Int("port")
	require.NoError(t, err)
	assert.Equal(t, int64(9090), port)

	snap = testSnapshot(t, map[string]any{"port": 9090.5})
	_, err = snap.Int("port")
	assert.Error(t, err)
}

func TestSnapshotSub(t *testing.T) {
	snap := testSnapshot(t, map[string]any{
		"services.bidding.endpoint": "http://bid:9000",
		"services.bidding.retries":  3,
		"services.audit.endpoint":   "http://audit:9001",
		"top":                       "level",
	})

	sub := snap.Sub("services.bidding")
	require.NotNil(t, sub)
	assert.Equal(t, "http://bid:9000", sub["endpoint"])
	assert.Equal(t, 3, sub["retries"])

	assert.Nil(t, snap.Sub("services.missing"))
}

func TestSnapshotBind(t *testing.T) {
	type bidding struct {
		Endpoint string `json:"endpoint"`
		Retries  int    `json:"retries"`
	}

	snap := testSnapshot(t, map[string]any{
		"services.bidding.endpoint": "http://bid:9000",
		"services.bidding.retries":  3,
	})

	var cfg bidding
	require.NoError(t, snap.Bind("services.bidding", &cfg))
	assert.Equal(t, "http://bid:9000", cfg.Endpoint)
	assert.Equal(t, 3, cfg.Retries)
}

func TestSnapshotBindTypeMismatch(t *testing.T) {
	type cfg struct {
		Retries int `json:"retries"`
	}

	snap := testSnapshot(t, map[string]any{
		"svc.retries": "many",
	})

	var c cfg
	err := snap.Bind("svc", &c)
	require.Error(t, err)
	assert.ErrorIs(t, err, rterrors.ErrConfigValidation)
}

func TestSnapshotChangedPaths(t *testing.T) {
	old := testSnapshot(t, map[string]any{
		"a": 1,
		"b": "same",
		"c": true,
	})
	next := newSnapshot(2, map[string]any{
		"a": 2,      // changed
		"b": "same", // unchanged
		"d": "new",  // added; c removed
	})

	assert.Equal(t, []string{"a", "c", "d"}, next.ChangedPaths(old))
	assert.Empty(t, next.ChangedPaths(next))
}

func TestSubtreeChanged(t *testing.T) {
	changed := []string{"services.bidding.endpoint", "log.level"}

	assert.True(t, SubtreeChanged(changed, "services.bidding"))
	assert.True(t, SubtreeChanged(changed, "log.level"))
	assert.False(t, SubtreeChanged(changed, "services.audit"))
	assert.False(t, SubtreeChanged(changed, "serv"))
}

func TestSnapshotHas(t *testing.T) {
	snap := testSnapshot(t, map[string]any{"a.b.c": 1})

	assert.True(t, snap.Has("a.b.c"))
	assert.True(t, snap.Has("a.b"))
	assert.True(t, snap.Has("a"))
	assert.False(t, snap.Has("a.b.c.d"))
	assert.False(t, snap.Has("x"))
}
