// Package watch implements the timeout registry: a per-topic set of
// countdowns that fire a notification unless cancelled first.
//
// Each topic moves through a two-state machine:
//
//	ABSENT --Register--> ARMED --Cancel | fire | Shutdown--> ABSENT
//
// Registering a topic that is already armed is dropped. The first countdown
// for a topic wins until it fires or is cancelled; its duration is never
// extended or reset.
//
// All state changes go through a single mutex. Timer callbacks run on their
// own goroutines and take the same mutex before touching the map, so a
// concurrent Cancel and fire resolve to exactly one winner.
//
// Usage:
//
//	reg := watch.NewRegistry(sink, watch.WithTimeoutPayload("timeout"))
//	armed, err := reg.Register("door.front", 30*time.Second)
//	...
//	if reg.Cancel("door.front") {
//		// countdown stopped, no Fired event will follow
//	}
//	reg.Shutdown()
package watch
