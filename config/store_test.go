package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rterrors "github.com/c360/runtimekit/errors"
)

// failingSource errors on every Load.
type failingSource struct{ err error }

func (f *failingSource) Name() string  { return "failing" }
func (f *failingSource) Priority() int { return PriorityFile }
func (f *failingSource) Load(context.Context) (map[string]any, error) {
	return nil, f.err
}

// mutableSource lets tests change what the next Load returns.
type mutableSource struct {
	priority int
	values   map[string]any
}

func (m *mutableSource) Name() string  { return "mutable" }
func (m *mutableSource) Priority() int { return m.priority }
func (m *mutableSource) Load(context.Context) (map[string]any, error) {
	return m.values, nil
}

func TestStoreLoadMergesByPriority(t *testing.T) {
	store := NewStore(nil,
		Overrides(map[string]any{"server": map[string]any{"port": 9999}}),
		Defaults(map[string]any{
			"server": map[string]any{"host": "localhost", "port": 8080},
			"debug":  false,
		}),
		NewMapSource("env-like", PriorityEnv, map[string]any{"debug": true}),
	)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version())

	// overrides (300) beat defaults (0) regardless of registration order
	port, err := snap.Int("server.port")
	require.NoError(t, err)
	assert.Equal(t, int64(9999), port)

	host, err := snap.String("server.host")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)

	debug, err := snap.Bool("debug")
	require.NoError(t, err)
	assert.True(t, debug)
}

func TestStoreLoadTwiceFails(t *testing.T) {
	store := NewStore(nil, Defaults(map[string]any{"a": 1}))

	_, err := store.Load(context.Background())
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, rterrors.ErrConfigValidation)
}

func TestStoreLeafReplacesSubtree(t *testing.T) {
	store := NewStore(nil,
		Defaults(map[string]any{
			"cache": map[string]any{"host": "redis", "port": 6379},
		}),
		Overrides(map[string]any{"cache": "disabled"}),
	)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)

	v, err := snap.String("cache")
	require.NoError(t, err)
	assert.Equal(t, "disabled", v)
	assert.False(t, snap.Has("cache.host"))
}

func TestStoreSubtreeReplacesLeaf(t *testing.T) {
	store := NewStore(nil,
		Defaults(map[string]any{"cache": "disabled"}),
		Overrides(map[string]any{
			"cache": map[string]any{"host": "redis"},
		}),
	)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)

	host, err := snap.String("cache.host")
	require.NoError(t, err)
	assert.Equal(t, "redis", host)

	_, err = snap.String("cache")
	assert.Error(t, err)
}

func TestStoreReloadBumpsVersion(t *testing.T) {
	src := &mutableSource{priority: PriorityFile, values: map[string]any{"a": 1}}
	store := NewStore(nil, src)

	first, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Version())

	src.values = map[string]any{"a": 2}
	second, err := store.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Version())
	assert.Equal(t, []string{"a"}, second.ChangedPaths(first))
	assert.Same(t, second, store.Current())
}

func TestStoreReloadFailureKeepsSnapshot(t *testing.T) {
	src := &mutableSource{priority: PriorityFile, values: map[string]any{"a": 1}}
	broken := &failingSource{err: fmt.Errorf("disk gone")}
	store := NewStore(nil, src)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)

	store.sources = append(store.sources, broken)
	_, err = store.Reload(context.Background())
	require.Error(t, err)

	// previous snapshot still current, version unchanged
	assert.Same(t, snap, store.Current())
	assert.Equal(t, uint64(1), store.Current().Version())
}

func TestStoreRequireShape(t *testing.T) {
	type serverCfg struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}

	store := NewStore(nil, Defaults(map[string]any{
		"server": map[string]any{"host": "localhost", "port": "not-a-port"},
	}))
	store.RequireShape("gateway", "server", serverCfg{})

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, rterrors.ErrConfigValidation)
	assert.Nil(t, store.Current())
}

func TestStoreSubscribe(t *testing.T) {
	src := &mutableSource{priority: PriorityFile, values: map[string]any{"a": 1}}
	store := NewStore(nil, src)

	_, err := store.Load(context.Background())
	require.NoError(t, err)

	ch, cancel := store.Subscribe()
	defer cancel()

	src.values = map[string]any{"a": 2}
	_, err = store.Reload(context.Background())
	require.NoError(t, err)

	select {
	case snap := <-ch:
		assert.Equal(t, uint64(2), snap.Version())
	case <-time.After(time.Second):
		t.Fatal("subscriber never received snapshot")
	}
}

func TestStoreSubscriberLagDropsOldest(t *testing.T) {
	src := &mutableSource{priority: PriorityFile, values: map[string]any{"n": 0}}
	store := NewStore(nil, src)
	_, err := store.Load(context.Background())
	require.NoError(t, err)

	ch, cancel := store.Subscribe()
	defer cancel()

	// Publish far more snapshots than the buffer holds without reading.
	for i := 1; i <= subscriberBuffer*3; i++ {
		src.values = map[string]any{"n": i}
		_, err := store.Reload(context.Background())
		require.NoError(t, err)
	}

	// Drain: the final snapshot must be among the delivered ones.
	var last *Snapshot
	for {
		select {
		case snap := <-ch:
			last = snap
			continue
		default:
		}
		break
	}
	require.NotNil(t, last)
	assert.Equal(t, store.Current().Version(), last.Version())
}

func TestStoreWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	store := NewStore(nil, NewFileSource(path))
	first, err := store.Load(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.StartWatching(ctx))

	ch, unsub := store.Subscribe()
	defer unsub()

	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o644))

	select {
	case snap := <-ch:
		assert.Greater(t, snap.Version(), first.Version())
		n, err := snap.Int("a")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after file change")
	}
}

func TestStoreClose(t *testing.T) {
	store := NewStore(nil, Defaults(map[string]any{"a": 1}))
	snap, err := store.Load(context.Background())
	require.NoError(t, err)

	ch, _ := store.Subscribe()
	store.Close()

	_, open := <-ch
	assert.False(t, open)
	assert.Same(t, snap, store.Current())

	_, err = store.Reload(context.Background())
	assert.Error(t, err)

	store.Close() // idempotent
}

func TestStoreLoadConcurrentFirstWins(t *testing.T) {
	store := NewStore(nil, Defaults(map[string]any{"a": 1}))

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = store.Load(context.Background())
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, rterrors.ErrConfigValidation)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent Load may publish")
	assert.Equal(t, uint64(1), store.Current().Version())
}

func TestStoreSubscribeCancelRacesReload(t *testing.T) {
	store := NewStore(nil, Defaults(map[string]any{"a": 1}))
	_, err := store.Load(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 200 {
			_, cancel := store.Subscribe()
			cancel()
		}
	}()
	for range 200 {
		_, err := store.Reload(context.Background())
		require.NoError(t, err)
	}
	<-done
}
