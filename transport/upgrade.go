// File: transport/upgrade.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Client side of the HTTP/1.1 upgrade request. The response is parsed
// with net/http over a bufio.Reader; whatever the reader buffered past
// the header boundary is returned as the connection prebuffer so the
// frame codec never loses the first frames.

package transport

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
)

// Upgrade writes an HTTP/1.1 GET with the given extra headers on conn and
// reads the response. The returned Conn carries any bytes buffered beyond
// the response headers. The response is returned un-verified; callers
// decide what a valid upgrade looks like.
func Upgrade(conn net.Conn, u *url.URL, header http.Header) (*http.Response, *Conn, error) {
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}
	host := u.Host

	var req []byte
	req = fmt.Appendf(req, "GET %s HTTP/1.1\r\nHost: %s\r\n", path, host)
	for key, values := range header {
		for _, v := range values {
			req = fmt.Appendf(req, "%s: %s\r\n", key, v)
		}
	}
	req = append(req, "\r\n"...)

	if _, err := conn.Write(req); err != nil {
		return nil, nil, fmt.Errorf("upgrade request write: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("upgrade response read: %w", err)
	}

	var prebuf []byte
	if n := br.Buffered(); n > 0 {
		prebuf = make([]byte, n)
		if _, err := io.ReadFull(br, prebuf); err != nil {
			return nil, nil, err
		}
	}
	return resp, NewConn(conn, prebuf), nil
}
