// File: protocol/handshake.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Opening-handshake key derivation per RFC6455 Section 1.3: the client
// sends 16 random bytes base64-encoded, the server answers with the SHA-1
// of the key concatenated with the magic GUID, base64-encoded again.
// Both keys live in small fixed-capacity arrays with an explicit used
// length; equality compares only the used prefix.

package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

const magicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const (
	requestKeyRawLen = 16
	requestKeyCap    = (requestKeyRawLen/3)*4 + 4 // 24
	responseKeyCap   = (sha1.Size/3)*4 + 4        // 28
)

var errKeyTooLong = errors.New("handshake key too long")

// RequestKey is the client's Sec-WebSocket-Key value.
type RequestKey struct {
	bytes [requestKeyCap]byte
	size  uint8
}

// GenerateRequestKey draws 16 bytes from the randomness source and
// base64-encodes them.
func GenerateRequestKey(rng io.Reader) (RequestKey, error) {
	var raw [requestKeyRawLen]byte
	if _, err := io.ReadFull(rng, raw[:]); err != nil {
		return RequestKey{}, err
	}
	var key RequestKey
	base64.StdEncoding.Encode(key.bytes[:], raw[:])
	key.size = uint8(base64.StdEncoding.EncodedLen(len(raw)))
	return key, nil
}

// ParseRequestKey reads a key back from its header representation.
func ParseRequestKey(s string) (RequestKey, error) {
	s = strings.TrimSpace(s)
	if len(s) > requestKeyCap {
		return RequestKey{}, errKeyTooLong
	}
	var key RequestKey
	copy(key.bytes[:], s)
	key.size = uint8(len(s))
	return key, nil
}

// String returns the encoded key, exactly as it appears on the wire.
func (k RequestKey) String() string { return string(k.bytes[:k.size]) }

// Equal compares the used prefixes, not the full backing arrays.
func (k RequestKey) Equal(other RequestKey) bool { return k.String() == other.String() }

// Verify recomputes the expected response for k and compares it with the
// candidate response key.
func (k RequestKey) Verify(response ResponseKey) bool {
	return DeriveResponseKey(k).Equal(response)
}

// ResponseKey is the server's Sec-WebSocket-Accept value.
type ResponseKey struct {
	bytes [responseKeyCap]byte
	size  uint8
}

// DeriveResponseKey computes SHA-1(requestKey ++ magic GUID), base64-encoded.
func DeriveResponseKey(req RequestKey) ResponseKey {
	var concat [requestKeyCap + len(magicGUID)]byte
	n := copy(concat[:], req.bytes[:req.size])
	n += copy(concat[n:], magicGUID)

	digest := sha1.Sum(concat[:n])

	var key ResponseKey
	base64.StdEncoding.Encode(key.bytes[:], digest[:])
	key.size = uint8(base64.StdEncoding.EncodedLen(len(digest)))
	return key
}

// ParseResponseKey reads an accept key from its header representation.
func ParseResponseKey(s string) (ResponseKey, error) {
	s = strings.TrimSpace(s)
	if len(s) > responseKeyCap {
		return ResponseKey{}, errKeyTooLong
	}
	var key ResponseKey
	copy(key.bytes[:], s)
	key.size = uint8(len(s))
	return key, nil
}

// String returns the encoded key, exactly as it appears on the wire.
func (k ResponseKey) String() string { return string(k.bytes[:k.size]) }

// Equal compares the used prefixes, not the full backing arrays.
func (k ResponseKey) Equal(other ResponseKey) bool { return k.String() == other.String() }
