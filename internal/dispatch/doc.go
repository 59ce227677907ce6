// Package dispatch is the single entry point for sending and learning commands.
//
// A Dispatcher resolves the device, picks the protocol encoder and drives the
// shared hardware through the transmit Arbiter. Every outcome, including
// failures, comes back as a Result carrying an HTTP-style status and body so
// the API, WebSocket, MQTT and timer paths report errors identically.
//
// Status mapping (see StatusFor):
//
//	unknown device or command   404
//	malformed config or request 400
//	setup not supported         405
//	unknown protocol            501
//	capture or driver failure   500
package dispatch
