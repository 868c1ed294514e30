// Package lock provides the mutual-exclusion primitive for conversation
// ownership.
//
// A lock entry maps a conversation ID to its owning operator plus an expiry.
// Acquire is atomic check-and-set: of N concurrent acquires for the same
// conversation exactly one is granted and the rest are denied with the
// winner's identity. Held locks must be renewed at an interval strictly
// shorter than the TTL (driven by session heartbeats); a lock that stops
// being renewed expires and the conversation becomes assignable again.
// That expiry is the only cancellation mechanism — there is no forced
// takeover operation.
//
// Two backends implement the contract: RedisStore for deployments with
// multiple supportd instances, and MemoryStore for single-instance use and
// tests. Both report denial, loss, and non-ownership the same way, so the
// assignment coordinator does not care which one it is driving.
package lock
