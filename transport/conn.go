// File: transport/conn.go
// Package transport wraps an encrypted duplex stream so the frame codec
// sees a plain byte stream, and carries the handshake prebuffer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "net"

// Conn is the byte stream handed to the frame codec. Reads drain the
// prebuffer first: the HTTP upgrade response reader may have buffered
// bytes past the header boundary, and those bytes are the first frames.
type Conn struct {
	conn   net.Conn
	prebuf []byte
}

// NewConn wraps conn. prebuf holds any bytes already consumed from the
// socket during the upgrade negotiation; it may be nil.
func NewConn(conn net.Conn, prebuf []byte) *Conn {
	return &Conn{conn: conn, prebuf: prebuf}
}

// Read serves prebuffered bytes before touching the socket.
func (c *Conn) Read(p []byte) (int, error) {
	if len(c.prebuf) > 0 {
		n := copy(p, c.prebuf)
		c.prebuf = c.prebuf[n:]
		if len(c.prebuf) == 0 {
			c.prebuf = nil
		}
		return n, nil
	}
	return c.conn.Read(p)
}

// Write passes through to the underlying stream.
func (c *Conn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.conn.Close()
}
