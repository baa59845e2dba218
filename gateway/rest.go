// File: gateway/rest.go
// Package gateway
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Authenticated REST calls. Failures surface as APIError with the raw
// body attached; they never tear down the gateway session. The bots
// dispatch side-effecting calls on their own goroutines.

package gateway

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sugawarayuuta/sonnet"
)

// DefaultAPIBase is the REST endpoint root of the production gateway.
const DefaultAPIBase = "https://discordapp.com/api/v6"

// gatewayQuery pins the session-protocol version and encoding on the
// upgrade URL.
const gatewayQuery = "?v=6&encoding=json"

// SendMessage posts content to a channel.
func (s *Session) SendMessage(channelID, content string) error {
	body, err := sonnet.Marshal(createMessage{Content: content})
	if err != nil {
		return fmt.Errorf("message encode: %w", err)
	}
	uri := fmt.Sprintf("%s/channels/%s/messages", s.apiBase, channelID)
	req, err := http.NewRequest(http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = s.apiDo(req)
	return err
}

// AddReaction puts an emoji reaction on a message.
func (s *Session) AddReaction(channelID, messageID, emoji string) error {
	uri := fmt.Sprintf("%s/channels/%s/messages/%s/reactions/%s/@me",
		s.apiBase, channelID, messageID, url.PathEscape(emoji))
	req, err := http.NewRequest(http.MethodPut, uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Length", "0")
	_, err = s.apiDo(req)
	return err
}

// apiGet issues an authenticated GET against the REST base.
func (s *Session) apiGet(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, s.apiBase+path, nil)
	if err != nil {
		return nil, err
	}
	return s.apiDo(req)
}

// apiDo attaches the credential, runs the request and returns the body.
// Non-2xx responses become APIError.
func (s *Session) apiDo(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", s.authHeader)
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: body}
	}
	return body, nil
}
