// Package queue decouples request handling from transmission.
//
// Producers (HTTP, WebSocket, MQTT) enqueue Jobs without blocking; a single
// Worker drains them in FIFO order through the dispatcher. The queue is a
// bounded channel, so a burst beyond its capacity is rejected with
// ErrQueueFull instead of growing memory or blocking the caller.
//
// Delivery is fire and forget: a failed job is logged, counted in Stats and
// reported to JobObservers, but never retried.
package queue
