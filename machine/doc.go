// Package machine defines the pure contract a feature author supplies to the
// execution engine: an initial state, a state-key function, a reducer, an
// effect descriptor, and optional guard and boundary hooks.
//
// Everything in this package is pure and synchronous. A Definition performs
// no I/O, starts no timers, and never mutates the state it is given - it only
// returns replacement values. All side effects are described as effect.Effect
// values and executed elsewhere.
//
// A Machine binds a Definition to a catalog.Catalog plus runtime options
// (event validation, cascade limits, auto-persist). Machines are immutable
// and may be shared across every instance and every engine that uses them.
package machine
