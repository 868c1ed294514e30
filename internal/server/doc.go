// ABOUTME: Package doc for the operator HTTP surface
// ABOUTME: Covers the REST API, WebSocket stream, and identity assumptions

// Package server exposes the operator console API.
//
// REST endpoints under /api/v1 handle listing, assignment, messaging, and
// quick replies. The /ws endpoint upgrades to a WebSocket that streams
// fan-out events for subscribed conversations and accepts subscribe,
// unsubscribe, watch_list, unwatch_list, and heartbeat frames. Heartbeat
// frames renew the operator's conversation locks as a side effect.
//
// Operator identity arrives in the X-Operator-ID header, set by the edge
// proxy after authentication. This service does not verify credentials.
package server
