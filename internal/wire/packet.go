// Package wire implements the byte-wise encoding for the two packet types
// exchanged between the mote and its peer, independent of either side's
// native struct layout.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/open-scum/scumcal/internal/tuning"
)

// Command values carried in an RXPacket.
const (
	CommandNone          uint8 = 0x00
	CommandChangeChannel uint8 = 0xFF
)

// NumTXCodes is the number of averaged tuning codes a TXPacket carries.
const NumTXCodes = 4

// RXPacketSize is the on-wire size of an RXPacket in bytes.
const RXPacketSize = 12

// TXPacketSize is the on-wire size of a TXPacket in bytes.
const TXPacketSize = 2 + NumTXCodes*3 + 2 + 2

// ErrShortPacket is returned when a buffer is smaller than the packet type
// being decoded.
var ErrShortPacket = fmt.Errorf("wire: packet too short")

// ErrCRC is returned when a decoded packet's checksum does not match its
// payload.
var ErrCRC = fmt.Errorf("wire: CRC mismatch")

// RXPacket is the frame the mote sends: its sequence number, the channel it
// is operating on, an optional command, and the tuning code it is
// reporting.
type RXPacket struct {
	Sequence uint8
	Channel  uint8
	Command  uint8
	Code     tuning.Code
}

// Encode serializes p into the 12-byte wire format.
func (p RXPacket) Encode() []byte {
	b := make([]byte, RXPacketSize)
	b[0] = p.Sequence
	b[1] = p.Channel
	// b[2:4] reserved
	b[4] = p.Command
	// b[5] reserved
	b[6] = p.Code.Coarse
	b[7] = p.Code.Mid
	b[8] = p.Code.Fine
	// b[9] reserved
	binary.LittleEndian.PutUint16(b[10:12], crc16(b[:10]))
	return b
}

// DecodeRXPacket validates the CRC and parses an RXPacket from b.
func DecodeRXPacket(b []byte) (RXPacket, error) {
	if len(b) < RXPacketSize {
		return RXPacket{}, ErrShortPacket
	}
	want := binary.LittleEndian.Uint16(b[10:12])
	if got := crc16(b[:10]); got != want {
		return RXPacket{}, ErrCRC
	}
	return RXPacket{
		Sequence: b[0],
		Channel:  b[1],
		Command:  b[4],
		Code: tuning.Code{
			Coarse: b[6],
			Mid:    b[7],
			Fine:   b[8],
		},
	}, nil
}

// TXPacket is the frame the peer sends: its sequence number, the channel
// the codes apply to, and up to NumTXCodes averaged tuning codes.
type TXPacket struct {
	Sequence uint8
	Channel  uint8
	Codes    [NumTXCodes]tuning.Code
}

// Encode serializes p into the wire format.
func (p TXPacket) Encode() []byte {
	b := make([]byte, TXPacketSize)
	b[0] = p.Sequence
	b[1] = p.Channel
	for i, c := range p.Codes {
		off := 2 + i*3
		b[off] = c.Coarse
		b[off+1] = c.Mid
		b[off+2] = c.Fine
	}
	// reserved bytes between the code array and the CRC are left zero.
	crcOffset := TXPacketSize - 2
	binary.LittleEndian.PutUint16(b[crcOffset:], crc16(b[:crcOffset]))
	return b
}

// DecodeTXPacket validates the CRC and parses a TXPacket from b.
func DecodeTXPacket(b []byte) (TXPacket, error) {
	if len(b) < TXPacketSize {
		return TXPacket{}, ErrShortPacket
	}
	crcOffset := TXPacketSize - 2
	want := binary.LittleEndian.Uint16(b[crcOffset:])
	if got := crc16(b[:crcOffset]); got != want {
		return TXPacket{}, ErrCRC
	}
	p := TXPacket{Sequence: b[0], Channel: b[1]}
	for i := range p.Codes {
		off := 2 + i*3
		p.Codes[i] = tuning.Code{
			Coarse: b[off],
			Mid:    b[off+1],
			Fine:   b[off+2],
		}
	}
	return p, nil
}

// crc16 computes the CRC-16/CCITT-FALSE checksum (polynomial 0x1021,
// initial value 0xFFFF), the same frame-check-sequence polynomial used
// elsewhere in 802.15.4 stacks.
func crc16(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
