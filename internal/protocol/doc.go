// Package protocol turns a device record and a command into a signal.
//
// Each supported protocol has an Encoder. Encoders are pure: they read the
// device, the command and the current toggle bit and return an Encoding that
// the dispatcher hands to the transmit layer. Carrier protocols (learned IR,
// SAA3004) produce a PulseTrain; the Kenwood XS8 bus produces a PinSequence
// for the GPIO bit-banger.
//
// Toggle bits are held in a ToggleState owned by the dispatcher and flipped
// only after a successful transmission.
package protocol
