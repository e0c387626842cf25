package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/c360/runtimekit/errors"
)

// Source supplies one layer of configuration as a nested map. Sources are
// merged in ascending Priority order, so higher-priority layers win on
// conflicting paths.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string

	// Priority orders the source relative to other layers. Higher wins.
	Priority() int

	// Load produces the source's current nested configuration tree.
	Load(ctx context.Context) (map[string]any, error)
}

// Watchable is implemented by sources that can signal external changes.
// The store reloads whenever a watch channel delivers.
type Watchable interface {
	// Watch returns a channel that receives a token after each change.
	// The channel closes when ctx is cancelled.
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// Conventional layer priorities. Later registrations at the same
// priority keep registration order, so these spread layers far enough
// apart that callers rarely need custom values.
const (
	PriorityDefaults = 0
	PriorityFile     = 100
	PriorityEnv      = 200
	PriorityOverride = 300
)

// MapSource serves a fixed in-memory tree. Used for programmed defaults
// and test overrides.
type MapSource struct {
	name     string
	priority int
	values   map[string]any
}

// NewMapSource builds a static source from a nested tree.
func NewMapSource(name string, priority int, values map[string]any) *MapSource {
	return &MapSource{name: name, priority: priority, values: values}
}

// Defaults builds a lowest-priority static source.
func Defaults(values map[string]any) *MapSource {
	return NewMapSource("defaults", PriorityDefaults, values)
}

// Overrides builds a highest-priority static source.
func Overrides(values map[string]any) *MapSource {
	return NewMapSource("overrides", PriorityOverride, values)
}

func (m *MapSource) Name() string  { return m.name }
func (m *MapSource) Priority() int { return m.priority }

func (m *MapSource) Load(_ context.Context) (map[string]any, error) {
	return m.values, nil
}

// FileSource loads a YAML or JSON document from disk, picking the codec
// by file extension. YAML parses JSON too, so .json files simply get
// stricter intent in the name.
type FileSource struct {
	path     string
	priority int
	optional bool
}

// NewFileSource builds a file-backed source at the standard file priority.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, priority: PriorityFile}
}

// Optional marks the file as allowed to be absent. A missing optional
// file loads as an empty layer instead of failing.
func (f *FileSource) Optional() *FileSource {
	f.optional = true
	return f
}

// WithPriority overrides the source's merge priority.
func (f *FileSource) WithPriority(p int) *FileSource {
	f.priority = p
	return f
}

func (f *FileSource) Name() string  { return "file:" + f.path }
func (f *FileSource) Priority() int { return f.priority }

func (f *FileSource) Load(_ context.Context) (map[string]any, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			if f.optional {
				return map[string]any{}, nil
			}
			return nil, errors.WrapInvalid(
				fmt.Errorf("%s: %w", f.path, errors.ErrConfigNotFound),
				"FileSource", "Load", "read file")
		}
		return nil, errors.Wrap(err, "FileSource", "Load", "read file")
	}

	tree := make(map[string]any)
	switch ext := strings.ToLower(filepath.Ext(f.path)); ext {
	case ".yaml", ".yml", ".json":
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%s: %w: %v", f.path, errors.ErrConfigParse, err),
				"FileSource", "Load", "parse document")
		}
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%s: %w: unsupported extension %q", f.path, errors.ErrConfigParse, ext),
			"FileSource", "Load", "select codec")
	}
	return tree, nil
}

// Watch signals whenever the backing file is written, created, or
// renamed into place. Editors that replace files atomically produce
// create/rename events, so the watcher tracks the parent directory.
func (f *FileSource) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "FileSource", "Watch", "create watcher")
	}

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "FileSource", "Watch", "watch directory")
	}

	target := filepath.Clean(f.path)
	out := make(chan struct{}, 1)

	go func() {
		defer watcher.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case out <- struct{}{}:
				default: // a pending signal already covers this change
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return out, nil
}

// EnvSource maps process environment variables into configuration paths.
// A variable PREFIX_SERVICES_BIDDING_ENDPOINT becomes the path
// services.bidding.endpoint: the prefix is stripped, separators become
// dots, and the remainder is lowercased. Values parse as bool, then
// int, then float, then fall back to string.
type EnvSource struct {
	prefix    string
	separator string
	priority  int
	environ   func() []string
}

// NewEnvSource builds an environment source for the given prefix,
// e.g. NewEnvSource("ADSP") reads ADSP_* variables.
func NewEnvSource(prefix string) *EnvSource {
	return &EnvSource{
		prefix:    prefix,
		separator: "_",
		priority:  PriorityEnv,
		environ:   os.Environ,
	}
}

func (e *EnvSource) Name() string  { return "env:" + e.prefix }
func (e *EnvSource) Priority() int { return e.priority }

func (e *EnvSource) Load(_ context.Context) (map[string]any, error) {
	prefix := e.prefix + e.separator
	tree := make(map[string]any)
	for _, entry := range e.environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		path := strings.ToLower(strings.ReplaceAll(key[len(prefix):], e.separator, "."))
		if path == "" {
			continue
		}
		insertPath(tree, strings.Split(path, "."), parseEnvValue(value))
	}
	return tree, nil
}

// parseEnvValue coerces an environment string into its most specific
// representation.
func parseEnvValue(raw string) any {
	// Only literal true/false count as booleans so "1" stays numeric.
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
