// File: transport/dial.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dialing with destination-port fixup. The gateway URL uses the wss
// scheme to force the encrypted upgrade path, but wss is not a scheme the
// address resolver knows a default port for, so an unqualified host must
// still resolve to the standard encrypted port 443. An explicitly
// specified port always wins.

package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"
)

// DialTimeout bounds the TCP connect plus, for encrypted schemes, the TLS
// handshake.
const DialTimeout = 10 * time.Second

// Dial connects to the host named by u and returns the duplex byte
// stream: TLS for wss/https, plain TCP for ws/http (used by tests and
// unencrypted local endpoints).
func Dial(u *url.URL) (net.Conn, error) {
	addr := net.JoinHostPort(u.Hostname(), resolvePort(u))
	dialer := &net.Dialer{Timeout: DialTimeout}

	if plaintextScheme(u.Scheme) {
		return dialer.Dial("tcp", addr)
	}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: u.Hostname()})
	if err != nil {
		return nil, fmt.Errorf("tls dial %s: %w", addr, err)
	}
	return conn, nil
}

// resolvePort returns the explicit port when the URL carries one, the
// plaintext default for ws/http, and 443 for everything else (wss, https,
// and any upgrade-forcing alias of them).
func resolvePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if plaintextScheme(u.Scheme) {
		return "80"
	}
	return "443"
}

func plaintextScheme(scheme string) bool {
	return scheme == "ws" || scheme == "http"
}
