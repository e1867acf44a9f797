package peertalk

import (
	"encoding/binary"
	"fmt"
)

// fragmentPayload splits payload into a FRAG_START, zero or more
// FRAG_CONT, and a terminating FRAG_END frame (spec §4.5). chunkSize is
// the configured preferred chunk; the FRAG_START frame carries a
// 4-byte total-length prefix ahead of its data so its data chunk is
// chunkSize-4 bytes, keeping every emitted frame's payload within
// chunkSize.
func fragmentPayload(payload []byte, chunkSize int, startSeq uint32) []Frame {
	if chunkSize <= 4 {
		chunkSize = 5
	}
	total := uint32(len(payload))

	startChunkSize := chunkSize - 4
	if startChunkSize > len(payload) {
		startChunkSize = len(payload)
	}
	startPayload := make([]byte, 4+startChunkSize)
	binary.BigEndian.PutUint32(startPayload[:4], total)
	copy(startPayload[4:], payload[:startChunkSize])

	seq := startSeq
	frames := []Frame{{Type: FrameFragStart, Sequence: seq, Payload: startPayload}}
	seq++

	remaining := payload[startChunkSize:]
	for len(remaining) > chunkSize {
		chunk := append([]byte(nil), remaining[:chunkSize]...)
		frames = append(frames, Frame{Type: FrameFragCont, Sequence: seq, Payload: chunk})
		seq++
		remaining = remaining[chunkSize:]
	}
	frames = append(frames, Frame{Type: FrameFragEnd, Sequence: seq, Payload: append([]byte(nil), remaining...)})
	return frames
}

// reassembler maintains the single in-progress fragmented-message
// reassembly a peer may have outstanding (spec §4.5). Zero value is
// ready to use.
type reassembler struct {
	inProgress bool
	totalLen   uint32
	buf        []byte
	nextSeq    uint32
}

func (r *reassembler) reset() {
	r.inProgress = false
	r.totalLen = 0
	r.buf = nil
	r.nextSeq = 0
}

// feed processes one fragment-control frame. It returns the reassembled
// payload and done=true once FRAG_END completes the message. Any
// sequence gap, type mismatch, or overflow of the declared total resets
// the reassembler and returns a protocol error; the caller is expected
// to close the connection, per spec §4.5 and the testable property in
// spec §8 ("without leaving the receiver in a wedged state").
func (r *reassembler) feed(f Frame) (payload []byte, done bool, err error) {
	switch f.Type {
	case FrameFragStart:
		if r.inProgress {
			r.reset()
			return nil, false, fmt.Errorf("%w: FRAG_START while reassembly in progress", ErrProtocol)
		}
		if len(f.Payload) < 4 {
			return nil, false, fmt.Errorf("%w: FRAG_START too short", ErrProtocol)
		}
		total := binary.BigEndian.Uint32(f.Payload[:4])
		chunk := f.Payload[4:]
		if uint32(len(chunk)) > total {
			return nil, false, fmt.Errorf("%w: FRAG_START chunk exceeds declared total", ErrProtocol)
		}
		r.inProgress = true
		r.totalLen = total
		r.buf = append([]byte(nil), chunk...)
		r.nextSeq = f.Sequence + 1
		return nil, false, nil

	case FrameFragCont, FrameFragEnd:
		if !r.inProgress {
			return nil, false, fmt.Errorf("%w: %s without FRAG_START", ErrProtocol, f.Type)
		}
		if f.Sequence != r.nextSeq {
			r.reset()
			return nil, false, fmt.Errorf("%w: fragment sequence gap", ErrProtocol)
		}
		if uint32(len(r.buf)+len(f.Payload)) > r.totalLen {
			r.reset()
			return nil, false, fmt.Errorf("%w: fragment exceeds declared total", ErrProtocol)
		}
		r.buf = append(r.buf, f.Payload...)
		r.nextSeq++
		if f.Type == FrameFragEnd {
			if uint32(len(r.buf)) != r.totalLen {
				r.reset()
				return nil, false, fmt.Errorf("%w: FRAG_END short of declared total", ErrProtocol)
			}
			out := r.buf
			r.reset()
			return out, true, nil
		}
		return nil, false, nil

	default:
		return nil, false, fmt.Errorf("%w: feed called with non-fragment frame type %s", ErrInternal, f.Type)
	}
}
