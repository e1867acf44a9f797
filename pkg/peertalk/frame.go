package peertalk

import (
	"encoding/binary"
	"fmt"
)

// Wire constants (spec §6 "Message frame").
var frameMagic = [4]byte{'P', 'T', 'M', 'G'}

const (
	frameVersion    = 1
	frameHeaderSize = 4 + 1 + 1 + 1 + 1 + 4 + 2 // magic,ver,type,flags,reserved,seq,paylen
	crcSize         = 2
)

// FrameFlags are the single byte of per-frame bits.
type FrameFlags uint8

// Frame is a fully decoded message frame (spec §3 "Message frame").
type Frame struct {
	Type     FrameType
	Flags    FrameFlags
	Sequence uint32
	Payload  []byte
}

// Encode serializes f into a freshly allocated buffer: header, payload,
// trailing CRC-16 over header-then-payload.
func (f Frame) Encode() []byte {
	buf := make([]byte, frameHeaderSize+len(f.Payload)+crcSize)
	buf[0], buf[1], buf[2], buf[3] = frameMagic[0], frameMagic[1], frameMagic[2], frameMagic[3]
	buf[4] = frameVersion
	buf[5] = byte(f.Type)
	buf[6] = byte(f.Flags)
	buf[7] = 0 // reserved
	binary.BigEndian.PutUint32(buf[8:12], f.Sequence)
	binary.BigEndian.PutUint16(buf[12:14], uint16(len(f.Payload)))
	copy(buf[frameHeaderSize:], f.Payload)
	crc := crc16Of(buf[:frameHeaderSize], f.Payload)
	binary.BigEndian.PutUint16(buf[frameHeaderSize+len(f.Payload):], crc)
	return buf
}

// DecodeStatus is the outcome of decodeFrame, matching the contract in
// spec §4.5: Complete, Partial (buffer not yet consumed), or Err
// (fatal to the connection).
type DecodeStatus int

const (
	DecodePartial DecodeStatus = iota
	DecodeComplete
	DecodeErr
)

// FrameDecodeResult carries the outcome of one decodeFrame call.
type FrameDecodeResult struct {
	Status   DecodeStatus
	Frame    Frame
	Consumed int // bytes to drop from the front of the input buffer
	Err      error
}

// decodeFrame attempts to extract one frame from the front of buf.
// Partial results consume nothing, letting the caller keep accumulating
// into the same framing buffer (spec §4.5).
func decodeFrame(buf []byte) FrameDecodeResult {
	if len(buf) < frameHeaderSize {
		return FrameDecodeResult{Status: DecodePartial}
	}
	if buf[0] != frameMagic[0] || buf[1] != frameMagic[1] || buf[2] != frameMagic[2] || buf[3] != frameMagic[3] {
		return FrameDecodeResult{Status: DecodeErr, Err: fmt.Errorf("%w: frame", ErrMagic)}
	}
	if buf[4] != frameVersion {
		return FrameDecodeResult{Status: DecodeErr, Err: fmt.Errorf("%w: frame version %d", ErrVersion, buf[4])}
	}
	payloadLen := int(binary.BigEndian.Uint16(buf[12:14]))
	total := frameHeaderSize + payloadLen + crcSize
	if len(buf) < total {
		return FrameDecodeResult{Status: DecodePartial}
	}
	header := buf[:frameHeaderSize]
	payload := buf[frameHeaderSize : frameHeaderSize+payloadLen]
	wantCRC := binary.BigEndian.Uint16(buf[frameHeaderSize+payloadLen : total])
	gotCRC := crc16Of(header, payload)
	if gotCRC != wantCRC {
		return FrameDecodeResult{Status: DecodeErr, Err: ErrCRC, Consumed: total}
	}
	frame := Frame{
		Type:     FrameType(buf[5]),
		Flags:    FrameFlags(buf[6]),
		Sequence: binary.BigEndian.Uint32(buf[8:12]),
	}
	if payloadLen > 0 {
		frame.Payload = append([]byte(nil), payload...)
	}
	return FrameDecodeResult{Status: DecodeComplete, Frame: frame, Consumed: total}
}
