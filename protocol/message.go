// File: protocol/message.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Message reassembly: one or more frames become a single logical message.
// A message owns one contiguous backing buffer; text fields are converted
// to strings exactly once, at the UTF-8 validation boundary, and never
// re-validated downstream.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxFramePayload bounds a single frame's payload to protect against
// resource exhaustion from hostile length fields.
const MaxFramePayload = 1 << 24 // 16 MiB

// Role selects the masking behavior when writing: clients mask, servers
// do not.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// Message is a reassembled, type-checked logical unit. Continuation never
// appears as a message kind; it only exists on the wire to mark non-final
// fragments.
type Message struct {
	kind Kind
	data []byte

	text    string // validated UTF-8: Text payload, or Close reason
	code    uint16
	hasCode bool
}

// newMessage validates the assembled payload against the kind. Text must
// be valid UTF-8; for Close, any bytes beyond the first two code bytes
// must be valid UTF-8.
func newMessage(kind Kind, data []byte) (*Message, error) {
	m := &Message{kind: kind, data: data}
	switch kind {
	case KindText:
		if !utf8.Valid(data) {
			return nil, ErrNonUTF8Text
		}
		m.text = string(data)
	case KindClose:
		if len(data) >= 2 {
			m.code = binary.BigEndian.Uint16(data[:2])
			m.hasCode = true
			if len(data) > 2 {
				if !utf8.Valid(data[2:]) {
					return nil, ErrNonUTF8Text
				}
				m.text = string(data[2:])
			}
		}
	case KindContinuation:
		return nil, ErrInvalidDataFrame
	}
	return m, nil
}

// Kind returns the logical message kind.
func (m *Message) Kind() Kind { return m.kind }

// Text returns the validated text payload. Only meaningful for KindText.
func (m *Message) Text() string { return m.text }

// Binary returns a view into the message's backing buffer.
func (m *Message) Binary() []byte { return m.data }

// Payload returns the raw assembled payload regardless of kind.
func (m *Message) Payload() []byte { return m.data }

// CloseInfo returns the close code and reason. ok is false when the close
// frame carried no code bytes at all.
func (m *Message) CloseInfo() (code uint16, reason string, ok bool) {
	return m.code, m.text, m.hasCode
}

// ReadMessage assembles the next logical message from the stream. A
// non-final Text or Binary frame starts a fragmented message and is
// followed by Continuation frames until a final one arrives. Masking, if
// present, is removed from each fragment immediately after its payload is
// read, before appending.
func ReadMessage(r io.Reader) (*Message, error) {
	hdr, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	kind := hdr.Kind

	var payload []byte
	for {
		if hdr.PayloadLen > MaxFramePayload {
			return nil, fmt.Errorf("%w: frame payload of %d exceeds limit", ErrInvalidLength, hdr.PayloadLen)
		}
		start := len(payload)
		payload = append(payload, make([]byte, int(hdr.PayloadLen))...)
		if _, err := io.ReadFull(r, payload[start:]); err != nil {
			return nil, err
		}
		if hdr.Masked {
			hdr.MaskKey.Apply(payload[start:])
		}

		if hdr.IsFinal {
			break
		}
		// Control frames are always final; ReadHeader enforces that, so
		// only data frames reach this point.
		if hdr, err = ReadHeader(r); err != nil {
			return nil, err
		}
		if hdr.Kind != KindContinuation {
			return nil, ErrInvalidDataFrame
		}
	}
	return newMessage(kind, payload)
}

// Write sends payload as a single final frame of the given kind. Clients
// mask the payload with a fresh key drawn from rng. An entirely empty
// payload is skipped, header included.
func Write(w io.Writer, kind Kind, payload []byte, role Role, rng io.Reader) error {
	if len(payload) == 0 {
		return nil
	}

	hdr := Header{
		IsFinal:    true,
		Kind:       kind,
		PayloadLen: uint64(len(payload)),
	}

	body := payload
	if role == RoleClient {
		key, err := NewMaskingKey(rng)
		if err != nil {
			return err
		}
		hdr.Masked = true
		hdr.MaskKey = key

		body = make([]byte, len(payload))
		copy(body, payload)
		key.Apply(body)
	}

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ClosePayload builds the payload of a close frame: 2 big-endian code
// bytes followed by an optional UTF-8 reason.
func ClosePayload(code uint16, reason string) []byte {
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf[:2], code)
	copy(buf[2:], reason)
	return buf
}
