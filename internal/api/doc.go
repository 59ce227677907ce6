// Package api implements the HTTP REST API and WebSocket server for hifilink.
//
// This package provides:
//   - Device registry endpoints (list, inspect, deep-merge update, delete)
//   - Send and learn endpoints that enqueue jobs or call the dispatcher directly
//   - Timer endpoints backed by the timer scheduler
//   - An audit endpoint listing transmissions and device or timer changes
//   - A WebSocket hub that streams transmission and queue events and accepts
//     send requests
//   - Middleware for request IDs, logging, panic recovery, CORS, body limits
//     and API key or bearer token authentication
//
// # Send semantics
//
// By default a send is queued and answered with 202. A full queue answers 429
// with the current depth and capacity. sync=1 bypasses the queue and waits for
// the transmission. A comma-separated command list and count expand into
// several jobs.
//
// # Security
//
// With neither security.api_key nor security.jwt.secret configured the API is
// open, which suits a hub on a trusted LAN. Health and info stay open either way.
package api
