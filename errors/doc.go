// Package errors provides standardized error handling for the runtimekit
// component runtime.
//
// # Overview
//
// The package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input or configuration,
// non-retryable), and Fatal (unrecoverable, stop processing). Classification
// enables callers to make informed decisions about retries and degradation
// without error string matching.
//
// # Error Taxonomy
//
// Sentinel variables cover every failure mode the runtime reports, grouped
// by subsystem:
//
//   - Configuration: ErrConfigNotFound, ErrConfigParse, ErrConfigValidation
//   - Registry: ErrDuplicateName, ErrUnknownComponent
//   - Dependency resolution: ErrCycleDetected, ErrMissingDependency
//   - Lifecycle: ErrConfigBinding, ErrStartTimeout, ErrStartFailed,
//     ErrStopFailed, ErrReconfigureFailed, ErrInvalidTransition
//   - Health: ErrProbeTimeout, ErrProbeFailed
//
// Structured error types carry the detail callers need to act on a failure:
// CycleError reports the offending dependency path, MissingDependencyError
// names both sides of the broken edge, BuildError names the component that
// aborted a build, and ShutdownError collects per-component stop failures.
// All of them wrap their sentinel, so errors.Is works through the chain:
//
//	if errors.Is(err, errors.ErrCycleDetected) {
//	    var ce *errors.CycleError
//	    errors.As(err, &ce)
//	    log.Printf("cycle: %s", strings.Join(ce.Path, " -> "))
//	}
//
// # Error Wrapping Pattern
//
// All wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// The Wrap family applies this pattern while preserving or setting the
// classification:
//
//	errors.Wrap(err, "Store", "Reload", "merge sources")          // preserves class
//	errors.WrapTransient(err, "Aggregator", "Check", "run probe") // retryable
//	errors.WrapInvalid(err, "Registry", "Register", "descriptor") // do not retry
//	errors.WrapFatal(err, "Orchestrator", "Build", "rollback")    // stop processing
package errors
