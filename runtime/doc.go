// Package runtime assembles registered components into a running
// system: it loads configuration, resolves dependency order, starts
// components layer by layer, keeps them reconfigured as config
// changes, and tears everything down in reverse.
//
// # Building a system
//
//	sys, err := runtime.New().
//		AddConfigSource(config.NewFileSource("app.yaml")).
//		AddConfigSource(config.NewEnvSource("APP")).
//		EnableHotReload().
//		Register(&component.Descriptor{
//			Name:       "cache",
//			ConfigPath: "cache",
//			Enabled:    true,
//			Factory:    newCache,
//		}).
//		Register(&component.Descriptor{
//			Name:         "api",
//			Dependencies: []string{"cache"},
//			Enabled:      true,
//			Factory:      newAPI,
//		}).
//		Build(ctx)
//
// Build is all-or-nothing: any configuration, resolution, or start
// failure rolls back every component already running and returns the
// error. A dependency cycle or missing dependency is detected before a
// single component starts.
//
// # Start semantics
//
// Components start in dependency layers. Everything in a layer has all
// of its dependencies running, so the layer starts concurrently up to
// the configured parallelism. Each Start call runs under the start
// timeout; overruns are cancelled and reported as failures.
//
// Only singleton components start eagerly. Transient and scoped
// components are constructed on demand through System.Resolve and
// System.Scope respectively.
package runtime
