// Package component defines the contract between the runtime and the
// units it manages: descriptors carrying registration metadata, the
// lifecycle state machine instances move through, and the optional
// capability interfaces a component may implement.
//
// A component is any value produced by a Factory. The runtime inspects
// it for optional capabilities and only drives the ones it finds:
//
//	Configurable    receives its config subtree before start
//	Reconfigurable  receives config changes while running
//	Starter         runs startup work under a deadline
//	Stopper         runs shutdown work under a deadline
//	Prober          reports health on demand
//
// A component that implements none of these is still valid; it is
// constructed, wired to its dependents, and torn down with the rest.
//
// # States
//
// Instances move through a fixed state machine:
//
//	Registered -> Configuring -> Configured -> Starting -> Running -> Stopping -> Stopped
//	                   |                            |          |
//	                   +--------> Failed <----------+----------+
//
// Transitions outside this graph are rejected with ErrInvalidTransition.
package component
