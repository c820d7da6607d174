// Package credential verifies caller-supplied credentials against stored,
// scheme-tagged credential records.
//
// A stored record has the form "{scheme}payload". The scheme identifier
// selects the Strategy that produced the payload; the Delegating verifier
// parses the tag, dispatches to the registered strategy, and lets that
// strategy decide equality. New algorithms are added by registering another
// Strategy, never by changing the verifier.
//
// Records without a parseable tag are verified with the designated default
// match scheme. Records tagged with an unregistered scheme fail closed.
// Callers only ever observe a boolean result: parse, dispatch and comparison
// failures are indistinguishable from the outside.
//
// A Delegating verifier is immutable once built and safe for concurrent use
// without locking.
package credential
