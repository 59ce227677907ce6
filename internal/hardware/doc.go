// Package hardware drives the physical outputs of the hub.
//
// Carrier signals go through the kernel LIRC transmit device, learning reads
// mode2 samples from a LIRC receive device, and the Kenwood lines and status
// LED use the GPIO character device. All timing-critical waits use BusyWait
// on a goroutine locked to its OS thread.
//
// Everything above this package talks to the interfaces in hardware.go;
// hwtest provides recording fakes for them.
package hardware
