// Package wire implements the byte-wise encoding for the packets the peer
// station exchanges with the mote: the tuning-code reports it receives,
// the averaged-code packets it transmits, and the post-calibration sensor
// frames. The layouts are fixed little-endian formats with the CRC in the
// last two bytes; nothing here depends on native struct layout.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Commands carried in a report packet.
const (
	CommandNone          uint8 = 0x00
	CommandChangeChannel uint8 = 0xFF
)

// NumTXCodes is the number of averaged tuning codes a code packet carries.
const NumTXCodes = 4

// NumSensors is the number of ADC outputs in a sensor frame.
const NumSensors = 4

// On-wire packet sizes in bytes.
const (
	ReportPacketSize     = 12
	CodePacketSize       = 2 + NumTXCodes*3 + 2 + 2
	SensorDataPacketSize = 2 + 2 + NumSensors*4 + 3 + 1 + 2
)

// ErrShortPacket is returned when a buffer is smaller than the packet
// type being decoded.
var ErrShortPacket = fmt.Errorf("wire: packet too short")

// ErrCRC is returned when a decoded packet's checksum does not match its
// payload.
var ErrCRC = fmt.Errorf("wire: CRC mismatch")

// Code is a (coarse, mid, fine) oscillator tuning code as reported by the
// mote. The peer station never interprets it; it only records, averages,
// and echoes it back.
type Code struct {
	Coarse uint8
	Mid    uint8
	Fine   uint8
}

// IsZero reports whether every field is zero. The mote pads unused code
// slots with zeros, which are not real observations.
func (c Code) IsZero() bool {
	return c == Code{}
}

// ReportPacket is the frame the mote sends: its sequence number, the
// channel it is operating on, an optional command for the peer station,
// and the tuning code it is reporting. The same layout doubles as the
// acknowledgment during the transmit step.
type ReportPacket struct {
	Sequence uint8
	Channel  uint8
	Command  uint8
	Code     Code
}

// DecodeReportPacket validates the CRC and parses a ReportPacket from b.
func DecodeReportPacket(b []byte) (ReportPacket, error) {
	if len(b) < ReportPacketSize {
		return ReportPacket{}, ErrShortPacket
	}
	want := binary.LittleEndian.Uint16(b[10:12])
	if got := crc16(b[:10]); got != want {
		return ReportPacket{}, ErrCRC
	}
	return ReportPacket{
		Sequence: b[0],
		Channel:  b[1],
		Command:  b[4],
		Code:     Code{Coarse: b[6], Mid: b[7], Fine: b[8]},
	}, nil
}

// Encode serializes p into the 12-byte wire format, for tests and for
// simulated motes.
func (p ReportPacket) Encode() []byte {
	b := make([]byte, ReportPacketSize)
	b[0] = p.Sequence
	b[1] = p.Channel
	b[4] = p.Command
	b[6] = p.Code.Coarse
	b[7] = p.Code.Mid
	b[8] = p.Code.Fine
	binary.LittleEndian.PutUint16(b[10:12], crc16(b[:10]))
	return b
}

// CodePacket is the frame the peer station transmits during the second
// calibration step: the averaged tuning codes for one channel.
type CodePacket struct {
	Sequence uint8
	Channel  uint8
	Codes    [NumTXCodes]Code
}

// Encode serializes p into the wire format.
func (p CodePacket) Encode() []byte {
	b := make([]byte, CodePacketSize)
	b[0] = p.Sequence
	b[1] = p.Channel
	for i, c := range p.Codes {
		off := 2 + i*3
		b[off] = c.Coarse
		b[off+1] = c.Mid
		b[off+2] = c.Fine
	}
	crcOffset := CodePacketSize - 2
	binary.LittleEndian.PutUint16(b[crcOffset:], crc16(b[:crcOffset]))
	return b
}

// DecodeCodePacket validates the CRC and parses a CodePacket from b.
func DecodeCodePacket(b []byte) (CodePacket, error) {
	if len(b) < CodePacketSize {
		return CodePacket{}, ErrShortPacket
	}
	crcOffset := CodePacketSize - 2
	want := binary.LittleEndian.Uint16(b[crcOffset:])
	if got := crc16(b[:crcOffset]); got != want {
		return CodePacket{}, ErrCRC
	}
	p := CodePacket{Sequence: b[0], Channel: b[1]}
	for i := range p.Codes {
		off := 2 + i*3
		p.Codes[i] = Code{Coarse: b[off], Mid: b[off+1], Fine: b[off+2]}
	}
	return p, nil
}

// SensorDataPacket is the post-calibration frame carrying a batch of ADC
// outputs from the mote's sensor pipeline, along with the tuning code the
// mote transmitted it on.
type SensorDataPacket struct {
	Sequence uint8
	Channel  uint8
	Outputs  [NumSensors]uint32
	Code     Code
}

// DecodeSensorDataPacket validates the CRC and parses a SensorDataPacket
// from b.
func DecodeSensorDataPacket(b []byte) (SensorDataPacket, error) {
	if len(b) < SensorDataPacketSize {
		return SensorDataPacket{}, ErrShortPacket
	}
	crcOffset := SensorDataPacketSize - 2
	want := binary.LittleEndian.Uint16(b[crcOffset:])
	if got := crc16(b[:crcOffset]); got != want {
		return SensorDataPacket{}, ErrCRC
	}
	p := SensorDataPacket{Sequence: b[0], Channel: b[1]}
	for i := range p.Outputs {
		off := 4 + i*4
		p.Outputs[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	codeOffset := 4 + NumSensors*4
	p.Code = Code{Coarse: b[codeOffset], Mid: b[codeOffset+1], Fine: b[codeOffset+2]}
	return p, nil
}

// Encode serializes p into the wire format, for simulated motes.
func (p SensorDataPacket) Encode() []byte {
	b := make([]byte, SensorDataPacketSize)
	b[0] = p.Sequence
	b[1] = p.Channel
	for i, out := range p.Outputs {
		off := 4 + i*4
		binary.LittleEndian.PutUint32(b[off:off+4], out)
	}
	codeOffset := 4 + NumSensors*4
	b[codeOffset] = p.Code.Coarse
	b[codeOffset+1] = p.Code.Mid
	b[codeOffset+2] = p.Code.Fine
	crcOffset := SensorDataPacketSize - 2
	binary.LittleEndian.PutUint16(b[crcOffset:], crc16(b[:crcOffset]))
	return b
}

// crc16 computes the CRC-16/CCITT-FALSE checksum (polynomial 0x1021,
// initial value 0xFFFF), matching the frame check sequence the mote
// computes on its end of the link.
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
