package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/c360/runtimekit/errors"
)

// Snapshot is an immutable view of merged configuration, tagged with a
// monotonically increasing version. All accessors are safe for concurrent
// use; none of them mutate the snapshot.
type Snapshot struct {
	version uint64
	values  map[string]any // dotted leaf path -> scalar or slice value
}

// newSnapshot copies values so the snapshot owns its map exclusively.
func newSnapshot(version uint64, values map[string]any) *Snapshot {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Snapshot{version: version, values: copied}
}

// Version returns the snapshot's monotonic version number.
// Versions start at 1 for the initial load and increase on every reload.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Lookup returns the raw value at a dotted leaf path.
func (s *Snapshot) Lookup(path string) (any, bool) {
	v, ok := s.values[path]
	return v, ok
}

// Has reports whether path exists either as a leaf or as a subtree prefix.
func (s *Snapshot) Has(path string) bool {
	if _, ok := s.values[path]; ok {
		return true
	}
	prefix := path + "."
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// Paths returns every leaf path in the snapshot, sorted.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.values))
	for k := range s.values {
		paths = append(paths, k)
	}
	sort.Strings(paths)
	return paths
}

// String returns the string value at path.
// Missing or mistyped values fail with ErrConfigValidation.
func (s *Snapshot) String(path string) (string, error) {
	v, ok := s.values[path]
	if !ok {
		return "", missingPath(path)
	}
	str, ok := v.(string)
	if !ok {
		return "", mistyped(path, "string", v)
	}
	return str, nil
}

// Int returns the integer value at path, accepting any integral numeric
// representation a source may produce.
func (s *Snapshot) Int(path string) (int64, error) {
	v, ok := s.values[path]
	if !ok {
		return 0, missingPath(path)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), nil
		}
	}
	return 0, mistyped(path, "int", v)
}

// Bool returns the boolean value at path.
func (s *Snapshot) Bool(path string) (bool, error) {
	v, ok := s.values[path]
	if !ok {
		return false, missingPath(path)
	}
	b, ok := v.(bool)
	if !ok {
		return false, mistyped(path, "bool", v)
	}
	return b, nil
}

// Float returns the floating-point value at path.
func (s *Snapshot) Float(path string) (float64, error) {
	v, ok := s.values[path]
	if !ok {
		return 0, missingPath(path)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, mistyped(path, "float", v)
}

// Duration returns the duration value at path. Accepts time.Duration
// values and strings in time.ParseDuration syntax ("250ms", "1m30s").
func (s *Snapshot) Duration(path string) (time.Duration, error) {
	v, ok := s.values[path]
	if !ok {
		return 0, missingPath(path)
	}
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, errors.WrapInvalid(
				fmt.Errorf("path %q: %w: %v", path, errors.ErrConfigValidation, err),
				"Snapshot", "Duration", "parse duration")
		}
		return parsed, nil
	}
	return 0, mistyped(path, "duration", v)
}

// Sub reconstructs the nested subtree rooted at path. Returns nil when
// nothing exists under the path.
func (s *Snapshot) Sub(path string) map[string]any {
	prefix := path + "."
	var tree map[string]any
	for k, v := range s.values {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if tree == nil {
			tree = make(map[string]any)
		}
		insertPath(tree, strings.Split(k[len(prefix):], "."), v)
	}
	return tree
}

// Bind decodes the subtree (or leaf value) at path into out, which must
// be a non-nil pointer. Decoding goes through a JSON round-trip so
// components bind ordinary tagged structs. Type mismatches fail with
// ErrConfigValidation; a missing path fails the same way.
func (s *Snapshot) Bind(path string, out any) error {
	var value any
	if sub := s.Sub(path); sub != nil {
		value = sub
	} else if leaf, ok := s.values[path]; ok {
		value = leaf
	} else {
		return missingPath(path)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("path %q: %w: %v", path, errors.ErrConfigValidation, err),
			"Snapshot", "Bind", "encode subtree")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("path %q: %w: %v", path, errors.ErrConfigValidation, err),
			"Snapshot", "Bind", "decode subtree")
	}
	return nil
}

// ChangedPaths returns the sorted set of leaf paths whose values differ
// between s and old. Paths present in only one snapshot are included.
func (s *Snapshot) ChangedPaths(old *Snapshot) []string {
	if old == nil {
		return s.Paths()
	}

	changed := make(map[string]struct{})
	for k, v := range s.values {
		if ov, ok := old.values[k]; !ok || !reflect.DeepEqual(v, ov) {
			changed[k] = struct{}{}
		}
	}
	for k := range old.values {
		if _, ok := s.values[k]; !ok {
			changed[k] = struct{}{}
		}
	}

	paths := make([]string, 0, len(changed))
	for k := range changed {
		paths = append(paths, k)
	}
	sort.Strings(paths)
	return paths
}

// SubtreeChanged reports whether any changed path falls under root
// (or equals it). Used by the orchestrator to decide which components
// need re-binding after a reload.
func SubtreeChanged(changed []string, root string) bool {
	prefix := root + "."
	for _, p := range changed {
		if p == root || strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// insertPath writes a leaf value into a nested map, creating intermediate
// maps as needed.
func insertPath(tree map[string]any, segments []string, value any) {
	for i, seg := range segments {
		if i == len(segments)-1 {
			tree[seg] = value
			return
		}
		next, ok := tree[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			tree[seg] = next
		}
		tree = next
	}
}

func missingPath(path string) error {
	return errors.WrapInvalid(
		fmt.Errorf("path %q: %w: value missing", path, errors.ErrConfigValidation),
		"Snapshot", "lookup", "resolve path")
}

func mistyped(path, want string, got any) error {
	return errors.WrapInvalid(
		fmt.Errorf("path %q: %w: want %s, have %T", path, errors.ErrConfigValidation, want, got),
		"Snapshot", "lookup", "type check")
}
