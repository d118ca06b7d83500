// Package link implements a half-duplex bit-serial link between two
// microcontrollers over three GPIO lines.
package link

// The link uses a clock line, a data line and a chip-select line shared by
// both parties, plus a local indicator line lit while sending.
//
// The sender owns the lines for the duration of a frame. It waits until
// chip-select is deasserted, switches the lines to outputs, asserts
// chip-select and clocks the frame out MSB first, holding each clock level
// for SenderDelay. The receiver samples the data line on every rising clock
// edge and validates the frame when chip-select is deasserted.
//
// Frame layout:
//
//	[length: 1 byte][payload: length bytes][checksum: 1 byte]
//
// The checksum is the sum of the payload bytes modulo 256. It detects any
// single bit error in the payload but not reordering of payload bytes.
//
// A receiver that gets a frame with a bad checksum answers with a frame
// carrying ErrorToken. A party that receives ErrorToken retransmits the
// last payload its application sent. Frames cut short are dropped without
// any reply.
