// File: protocol/header.go
// Package protocol implements the RFC6455 wire format: frame headers,
// payload masking, message reassembly and the opening-handshake keys.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The codec works over any bidirectional byte stream. Headers are decoded
// from two fixed bytes plus a variable extension (0/2/8 extended-length
// bytes, 0/4 mask bytes) and are never retained beyond one frame.

package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// MaxHeaderLen is the largest possible encoded header:
// 2 fixed bytes + 8 extended-length bytes + 4 mask bytes.
const MaxHeaderLen = 14

// Protocol errors. These are fatal to the current connection and are never
// silently corrected.
var (
	ErrInvalidLength    = errors.New("control frame payload too long")
	ErrInvalidDataFrame = errors.New("invalid data frame")
	ErrReservedOpcode   = errors.New("reserved opcode")
	ErrNonUTF8Text      = errors.New("text payload is not valid UTF-8")
)

// Kind identifies the frame type carried in the opcode bits.
type Kind byte

// Frame kinds defined in RFC6455. Opcodes 3-7 and 11-15 are reserved and
// rejected at decode time.
const (
	KindContinuation Kind = 0x0
	KindText         Kind = 0x1
	KindBinary       Kind = 0x2
	KindClose        Kind = 0x8
	KindPing         Kind = 0x9
	KindPong         Kind = 0xA
)

// IsControl reports whether the kind is a control frame (Close/Ping/Pong).
func (k Kind) IsControl() bool {
	switch k {
	case KindClose, KindPing, KindPong:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case KindContinuation:
		return "continuation"
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindClose:
		return "close"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return "reserved"
	}
}

func kindFromOpcode(op byte) (Kind, error) {
	switch op {
	case 0x0, 0x1, 0x2, 0x8, 0x9, 0xA:
		return Kind(op), nil
	default:
		return 0, ErrReservedOpcode
	}
}

// MaskingKey is the 4-byte client masking key. Applying it twice restores
// the original payload.
type MaskingKey [4]byte

// NewMaskingKey draws a fresh key from the given randomness source.
func NewMaskingKey(rng io.Reader) (MaskingKey, error) {
	var key MaskingKey
	if _, err := io.ReadFull(rng, key[:]); err != nil {
		return MaskingKey{}, err
	}
	return key, nil
}

// Apply XORs payload byte i with key[i%4] in place. Self-inverse.
func (k MaskingKey) Apply(payload []byte) {
	for i := range payload {
		payload[i] ^= k[i&3]
	}
}

// Header is one decoded WebSocket frame header.
type Header struct {
	IsFinal    bool
	Reserved   [3]bool // RSV1..RSV3, carried but never interpreted
	Kind       Kind
	PayloadLen uint64
	Masked     bool
	MaskKey    MaskingKey
}

// ReadHeader decodes a frame header from the stream. The control-frame
// invariant (final, payload < 126) is enforced here, before any payload
// bytes are consumed.
func ReadHeader(r io.Reader) (Header, error) {
	var fixed [2]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return Header{}, err
	}

	kind, err := kindFromOpcode(fixed[0] & 0x0F)
	if err != nil {
		return Header{}, err
	}

	h := Header{
		IsFinal: fixed[0]&0x80 != 0,
		Reserved: [3]bool{
			fixed[0]&0x40 != 0,
			fixed[0]&0x20 != 0,
			fixed[0]&0x10 != 0,
		},
		Kind:       kind,
		PayloadLen: uint64(fixed[1] & 0x7F),
		Masked:     fixed[1]&0x80 != 0,
	}

	if kind.IsControl() {
		if h.PayloadLen >= 126 {
			return Header{}, ErrInvalidLength
		}
		if !h.IsFinal {
			return Header{}, ErrInvalidDataFrame
		}
	}

	switch h.PayloadLen {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Header{}, err
		}
		h.PayloadLen = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Header{}, err
		}
		h.PayloadLen = binary.BigEndian.Uint64(ext[:])
	}

	if h.Masked {
		if _, err := io.ReadFull(r, h.MaskKey[:]); err != nil {
			return Header{}, err
		}
	}
	return h, nil
}

// Bytes encodes the header into its wire form, returning only the used
// prefix of a fixed 14-byte scratch buffer.
func (h Header) Bytes() []byte {
	var buf [MaxHeaderLen]byte

	var b0 byte
	if h.IsFinal {
		b0 |= 0x80
	}
	if h.Reserved[0] {
		b0 |= 0x40
	}
	if h.Reserved[1] {
		b0 |= 0x20
	}
	if h.Reserved[2] {
		b0 |= 0x10
	}
	b0 |= byte(h.Kind) & 0x0F
	buf[0] = b0

	var maskBit byte
	if h.Masked {
		maskBit = 0x80
	}

	n := 2
	switch {
	case h.PayloadLen <= 125:
		buf[1] = byte(h.PayloadLen) | maskBit
	case h.PayloadLen <= 0xFFFF:
		buf[1] = 126 | maskBit
		binary.BigEndian.PutUint16(buf[2:], uint16(h.PayloadLen))
		n += 2
	default:
		buf[1] = 127 | maskBit
		binary.BigEndian.PutUint64(buf[2:], h.PayloadLen)
		n += 8
	}

	if h.Masked {
		copy(buf[n:], h.MaskKey[:])
		n += 4
	}
	return buf[:n]
}
