// Package engine implements the durable state-machine execution engine.
//
// The engine drives instances of a pure machine.Definition through validated
// transitions: it loads state from a storage adapter, runs the reducer
// cascade seeded by the dispatched event, validates each event against the
// state catalog, accumulates the effects every transition describes, persists
// the resulting state, and hands the effect list to an effect runner.
//
// ARCHITECTURE:
//
// Pure core, impure shell:
// The engine itself performs no I/O beyond the storage adapter it is given.
// It never executes an effect and never starts a timer - effects are data,
// interpreted by the EffectRunner after the cascade completes. This keeps
// the dispatch algorithm synchronous and deterministically testable.
//
// Dispatch flow:
//  1. Acquire the per-instance single-flight lock (non-blocking; a
//     concurrent dispatch for the same instance is rejected immediately)
//  2. Load current state, defaulting to the definition's initial state
//  3. Drain the FIFO event queue: validate, guard, reduce, collect effects
//     in onExit -> effects -> onEnter order per key change, append emitted
//     events to the back of the queue
//  4. Persist the final state (when AutoPersist)
//  5. Release the lock, then run the accumulated effects
//
// Failure semantics:
// Validation failures, guard rejections, loop-limit breaches, and
// concurrency conflicts are recoverable and reported in the DispatchResult;
// the instance stays usable and its state is whatever it was before the
// failing step. Storage errors are returned. Effect-runner errors are
// advisory: they reach the OnError hook and are not re-thrown, because the
// state they follow is already persisted.
//
// Concurrency model:
// Exactly one in-flight dispatch per instance id, enforced by an in-process
// advisory lock. Dispatches for distinct ids are fully independent. There is
// no cross-process locking; multi-process deployments must shard instances
// or layer an external lock beneath the storage adapter.
package engine
