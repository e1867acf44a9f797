package peertalk

import (
	"encoding/binary"
	"fmt"
)

// Wire constants (spec §6 "Discovery datagram").
var discoveryMagic = [4]byte{'P', 'T', 'L', 'K'}

const discoveryVersion = 1

// DiscoveryFlags are the single byte of per-packet bits.
type DiscoveryFlags uint8

// CapabilityTLV is one optional tag/length/value entry appended after
// the name (spec §3, §6).
type CapabilityTLV struct {
	Tag   uint8
	Value []byte
}

// DiscoveryPacket is a fully decoded discovery datagram (spec §3).
type DiscoveryPacket struct {
	Type       DiscoveryType
	Flags      DiscoveryFlags
	SenderPort uint16
	Name       string
	TLVs       []CapabilityTLV
}

// Encode serializes p into a single UDP datagram payload.
func (p DiscoveryPacket) Encode() []byte {
	nameBytes := []byte(p.Name)
	if len(nameBytes) > 31 {
		nameBytes = nameBytes[:31]
	}
	size := 4 + 1 + 1 + 1 + 2 + 1 + len(nameBytes)
	for _, t := range p.TLVs {
		size += 2 + len(t.Value)
	}
	buf := make([]byte, size)
	buf[0], buf[1], buf[2], buf[3] = discoveryMagic[0], discoveryMagic[1], discoveryMagic[2], discoveryMagic[3]
	buf[4] = discoveryVersion
	buf[5] = byte(p.Type)
	buf[6] = byte(p.Flags)
	binary.BigEndian.PutUint16(buf[7:9], p.SenderPort)
	buf[9] = byte(len(nameBytes))
	off := 10
	off += copy(buf[off:], nameBytes)
	for _, t := range p.TLVs {
		buf[off] = t.Tag
		buf[off+1] = byte(len(t.Value))
		off += 2
		off += copy(buf[off:], t.Value)
	}
	return buf
}

// decodeDiscovery parses one complete UDP datagram. Unlike decodeFrame
// there is no Partial state: a datagram either arrives whole or not at
// all, matching spec §8's round-trip property.
func decodeDiscovery(buf []byte) (DiscoveryPacket, error) {
	if len(buf) < 10 {
		return DiscoveryPacket{}, fmt.Errorf("%w: discovery packet", ErrTruncated)
	}
	if buf[0] != discoveryMagic[0] || buf[1] != discoveryMagic[1] || buf[2] != discoveryMagic[2] || buf[3] != discoveryMagic[3] {
		return DiscoveryPacket{}, fmt.Errorf("%w: discovery packet", ErrMagic)
	}
	if buf[4] != discoveryVersion {
		return DiscoveryPacket{}, fmt.Errorf("%w: discovery version %d", ErrVersion, buf[4])
	}
	nameLen := int(buf[9])
	if len(buf) < 10+nameLen {
		return DiscoveryPacket{}, fmt.Errorf("%w: discovery name", ErrTruncated)
	}
	p := DiscoveryPacket{
		Type:       DiscoveryType(buf[5]),
		Flags:      DiscoveryFlags(buf[6]),
		SenderPort: binary.BigEndian.Uint16(buf[7:9]),
		Name:       string(buf[10 : 10+nameLen]),
	}
	off := 10 + nameLen
	for off < len(buf) {
		if off+2 > len(buf) {
			return DiscoveryPacket{}, fmt.Errorf("%w: discovery TLV header", ErrTruncated)
		}
		tag := buf[off]
		vlen := int(buf[off+1])
		off += 2
		if off+vlen > len(buf) {
			return DiscoveryPacket{}, fmt.Errorf("%w: discovery TLV value", ErrTruncated)
		}
		var val []byte
		if vlen > 0 {
			val = append([]byte(nil), buf[off:off+vlen]...)
		}
		p.TLVs = append(p.TLVs, CapabilityTLV{Tag: tag, Value: val})
		off += vlen
	}
	return p, nil
}
