// File: gateway/errors.go
// Package gateway
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session error taxonomy. Transport and protocol failures surface as
// wrapped errors from the owning layer; the types here cover what the
// session itself can diagnose. All of them are fatal to the current
// connection except APIError, which never tears the session down.

package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoAck means a heartbeat interval elapsed without the previous
// heartbeat being acknowledged; the peer may already have dropped the
// session, so the caller must reconnect from scratch.
var ErrNoAck = errors.New("no ack received between heartbeats")

// HandshakeError reports an upgrade response that failed verification.
// It keeps the raw response for diagnostics.
type HandshakeError struct {
	Response *http.Response
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("invalid websocket handshake response: %s", e.Response.Status)
}

// APIError is a non-2xx REST response, with the raw body attached.
type APIError struct {
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request failed with status %d: %s", e.Status, e.Body)
}

// UnexpectedMessageError reports a websocket message the session protocol
// has no interpretation for: a binary frame, a ping, or a close with any
// code other than "going away".
type UnexpectedMessageError struct {
	Kind      string
	CloseCode uint16
}

func (e *UnexpectedMessageError) Error() string {
	if e.Kind == "close" {
		return fmt.Sprintf("unexpected websocket close, code %d", e.CloseCode)
	}
	return fmt.Sprintf("unexpected websocket %s message", e.Kind)
}
