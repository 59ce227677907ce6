// Package mqttbridge connects hifilink's command queue to an MQTT broker.
//
// Producers publish commands and hifilink answers on per-device topics:
//
//	┌────────────┐  hifilink/command/{device}  ┌──────────┐       ┌────────┐
//	│  producer  │ ──────────────────────────► │  bridge  │ ────► │ queue  │
//	│            │ ◄────────────────────────── │          │ ◄──── │ worker │
//	└────────────┘  hifilink/ack/{device}      └──────────┘       └────────┘
//	                hifilink/state/{device}
//	                hifilink/health
//
// # Messages
//
// A command payload is a CommandMessage. The device is taken from the topic
// when the body does not name one; command may be a comma-separated list.
//
//	{"id": "c1", "command": "play", "repetitions": 2}
//
// Every command is acknowledged twice on the ack topic: once when it is
// queued (or rejected, e.g. QUEUE_FULL), and once when the worker has sent
// every job it expanded to ("accepted" or "failed").
//
// Each transmission, whatever its source, is published on the state topic.
// The HealthReporter publishes a retained health message every
// mqtt.health_interval seconds.
//
// # Thread Safety
//
// Handlers run on paho goroutines and the observer callbacks on the worker
// goroutine; neither publishes directly. Outgoing messages pass through a
// bounded outbox drained by one goroutine started with Start.
package mqttbridge
