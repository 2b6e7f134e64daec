// Package rt simulates the realtime audio server the effects graph runs
// against: a thread loop that runs one processing cycle per quantum under its
// lock, a core that completes sync round-trips after a full cycle, and
// filters that nodes use as their connection to the server.
//
// Lock, Wait and the filter calls must never be made from inside a cycle
// callback; the loop lock is already held there.
package rt
