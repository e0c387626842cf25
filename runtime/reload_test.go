package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/runtimekit/component"
	"github.com/c360/runtimekit/config"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestHotReloadRebindsChangedComponent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	writeConfig(t, path, "cache:\n  size: 64\nbus:\n  url: local\n")

	rec := &recorder{}
	b := New().
		AddConfigSource(config.NewFileSource(path)).
		EnableHotReload()
	cache := register(b, rec, "cache")
	bus := register(b, rec, "bus")
	sys := buildSystem(t, b)

	require.Equal(t, 64, cache.config()["size"])

	writeConfig(t, path, "cache:\n  size: 256\nbus:\n  url: local\n")

	waitFor(t, 5*time.Second, func() bool {
		return rec.indexOf("cache:reconfigure") >= 0
	}, "cache was never reconfigured")
	assert.Equal(t, 256, cache.config()["size"])

	// bus subtree did not change; it must not be touched
	assert.Equal(t, -1, rec.indexOf("bus:reconfigure"))
	assert.Equal(t, "local", bus.config()["url"])

	state, _ := sys.State("cache")
	assert.Equal(t, component.Running, state)
}

func TestHotReloadSkipsStaticComponents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	writeConfig(t, path, "static:\n  level: 1\n")

	c := &staticOnly{}

	b := New().
		AddConfigSource(config.NewFileSource(path)).
		EnableHotReload()
	b.Register(&component.Descriptor{
		Name:       "static",
		Enabled:    true,
		ConfigPath: "static",
		Factory:    func(component.Dependencies) (any, error) { return c, nil },
	})
	sys := buildSystem(t, b)

	writeConfig(t, path, "static:\n  level: 2\n")

	waitFor(t, 5*time.Second, func() bool {
		return sys.Config().Version() > 1
	}, "snapshot never advanced")

	// component keeps its original binding and stays Running
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, c.level)
	state, _ := sys.State("static")
	assert.Equal(t, component.Running, state)
}

// staticOnly is Configurable but not Reconfigurable.
type staticOnly struct {
	level int
}

func (c *staticOnly) Configure(snap *config.Snapshot, path string) error {
	lvl, err := snap.Int(path + ".level")
	if err != nil {
		return err
	}
	c.level = int(lvl)
	return nil
}

func TestHotReloadFailureMarksComponentFailed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	writeConfig(t, path, "fragile:\n  mode: a\nsolid:\n  mode: a\n")

	rec := &recorder{}
	fragile := &fragileComponent{rec: rec}
	b := New().
		AddConfigSource(config.NewFileSource(path)).
		EnableHotReload()
	b.Register(&component.Descriptor{
		Name:       "fragile",
		Enabled:    true,
		ConfigPath: "fragile",
		Factory:    func(component.Dependencies) (any, error) { return fragile, nil },
	})
	register(b, rec, "solid")
	sys := buildSystem(t, b)

	writeConfig(t, path, "fragile:\n  mode: b\nsolid:\n  mode: b\n")

	waitFor(t, 5*time.Second, func() bool {
		state, _ := sys.State("fragile")
		return state == component.Failed
	}, "fragile component never marked failed")

	// the sibling took its change and kept running
	waitFor(t, 5*time.Second, func() bool {
		return rec.indexOf("solid:reconfigure") >= 0
	}, "solid component never reconfigured")
	state, _ := sys.State("solid")
	assert.Equal(t, component.Running, state)
}

// fragileComponent accepts its first config and rejects every change.
type fragileComponent struct {
	rec *recorder
}

func (c *fragileComponent) Configure(*config.Snapshot, string) error { return nil }

func (c *fragileComponent) Reconfigure(context.Context, *config.Snapshot, string) error {
	return fmt.Errorf("new mode unsupported")
}

func TestHotReloadRejectsSnapshotDroppingBoundSubtree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	writeConfig(t, path, "cache:\n  size: 64\nbus:\n  url: local\n")

	rec := &recorder{}
	b := New().
		AddConfigSource(config.NewFileSource(path)).
		EnableHotReload()
	cache := register(b, rec, "cache")
	register(b, rec, "bus")
	sys := buildSystem(t, b)

	// the cache subtree disappears entirely; the snapshot must be rejected
	writeConfig(t, path, "bus:\n  url: remote\n")

	// give the watcher time to attempt the reload
	time.Sleep(400 * time.Millisecond)

	assert.Equal(t, uint64(1), sys.Config().Version(),
		"a snapshot missing a bound subtree must not publish")
	assert.Equal(t, 64, cache.config()["size"])
	assert.Equal(t, -1, rec.indexOf("cache:reconfigure"))
	state, _ := sys.State("cache")
	assert.Equal(t, component.Running, state)
}

func TestHotReloadBadFileKeepsRunning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	writeConfig(t, path, "cache:\n  size: 64\n")

	rec := &recorder{}
	b := New().
		AddConfigSource(config.NewFileSource(path)).
		EnableHotReload()
	cache := register(b, rec, "cache")
	sys := buildSystem(t, b)

	writeConfig(t, path, "{broken: yaml: [")

	// give the watcher time to attempt the reload
	time.Sleep(400 * time.Millisecond)

	assert.Equal(t, uint64(1), sys.Config().Version(), "bad reload must not publish")
	assert.Equal(t, 64, cache.config()["size"])
	state, _ := sys.State("cache")
	assert.Equal(t, component.Running, state)
}
