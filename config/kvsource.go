package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"gopkg.in/yaml.v3"

	"github.com/c360/runtimekit/errors"
	"github.com/c360/runtimekit/pkg/retry"
)

// KVSource reads configuration from a JetStream key-value bucket.
// Bucket keys use "." as the path separator and values hold YAML or
// JSON scalars/documents, so "services.bidding" may carry an entire
// subtree in one entry.
type KVSource struct {
	kv       jetstream.KeyValue
	priority int
	retry    retry.Config
}

// NewKVSource wraps an existing key-value bucket as a configuration
// layer. The bucket sits between files and environment by default.
// Transient bucket errors are retried with backoff.
func NewKVSource(kv jetstream.KeyValue) *KVSource {
	return &KVSource{
		kv:       kv,
		priority: PriorityFile + 50,
		retry:    retry.DefaultConfig(),
	}
}

// WithPriority overrides the source's merge priority.
func (s *KVSource) WithPriority(p int) *KVSource {
	s.priority = p
	return s
}

func (s *KVSource) Name() string  { return "kv:" + s.kv.Bucket() }
func (s *KVSource) Priority() int { return s.priority }

func (s *KVSource) Load(ctx context.Context) (map[string]any, error) {
	var tree map[string]any
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		loaded, err := s.loadOnce(ctx)
		if err != nil {
			return err
		}
		tree = loaded
		return nil
	})
	return tree, err
}

func (s *KVSource) loadOnce(ctx context.Context) (map[string]any, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "KVSource", "Load", "list keys")
	}

	tree := make(map[string]any)
	for key := range lister.Keys() {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, errors.Wrap(
				fmt.Errorf("key %q: %w", key, err),
				"KVSource", "Load", "get entry")
		}

		var value any
		if err := yaml.Unmarshal(entry.Value(), &value); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("key %q: %w: %v", key, errors.ErrConfigParse, err),
				"KVSource", "Load", "decode value")
		}
		insertPath(tree, strings.Split(key, "."), value)
	}
	return tree, nil
}

// Watch signals on every put or delete in the bucket. The initial
// replay of existing values is swallowed so only live updates trigger
// reloads.
func (s *KVSource) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := s.kv.WatchAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "KVSource", "Watch", "watch bucket")
	}

	out := make(chan struct{}, 1)
	go func() {
		defer watcher.Stop()
		defer close(out)
		replaying := true
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if update == nil {
					// nil marks the end of the initial replay
					replaying = false
					continue
				}
				if replaying {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
