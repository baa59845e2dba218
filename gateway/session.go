// File: gateway/session.go
// Package gateway
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session lifecycle: Connecting → AwaitingHello → Identifying → Ready.
// From Ready the session can move to Resuming (peer closed with "going
// away") or surface an error, leaving reconnect policy to the caller.
// One goroutine drives a session; the only concurrent helper is the
// reader pump feeding inbound messages into a channel so Next can race
// them against the heartbeat ticker.

package gateway

import (
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/momentics/gatecord/protocol"
	"github.com/momentics/gatecord/transport"
)

// Config holds the parameters for bringing up a session.
type Config struct {
	Token   string
	Intents Intents

	// APIBase overrides the REST endpoint root. Defaults to DefaultAPIBase.
	APIBase string
	// HTTPClient overrides the REST client. Defaults to a client with
	// DialTimeout-bounded dialing.
	HTTPClient *http.Client
	// Rand is the randomness source for handshake nonces and masking
	// keys. Defaults to crypto/rand.
	Rand io.Reader
}

type inboundMessage struct {
	msg *protocol.Message
	err error
}

// Session owns one logical gateway session and its live transport.
type Session struct {
	httpc      *http.Client
	rng        io.Reader
	token      string
	authHeader string
	apiBase    string
	intents    Intents

	conn    *transport.Conn
	inbound chan inboundMessage
	done    chan struct{}

	sessionID string
	userID    string
	lastSeq   uint64

	heartbeat         *time.Ticker
	heartbeatInterval time.Duration
	pendingAck        bool

	eventsDelivered  atomic.Int64
	messagesReceived atomic.Int64
	heartbeatsSent   atomic.Int64
	resumesCompleted atomic.Int64
}

// Connect brings up a fresh session: gateway URL resolution, upgrade
// handshake, hello, identify, ready. It blocks until the session is
// Ready or an error occurs.
func Connect(cfg Config) (*Session, error) {
	s := &Session{
		httpc:      cfg.HTTPClient,
		rng:        cfg.Rand,
		token:      cfg.Token,
		authHeader: "Bot " + cfg.Token,
		apiBase:    cfg.APIBase,
		intents:    cfg.Intents,
	}
	if s.httpc == nil {
		s.httpc = &http.Client{Timeout: transport.DialTimeout * 3}
	}
	if s.rng == nil {
		s.rng = rand.Reader
	}
	if s.apiBase == "" {
		s.apiBase = DefaultAPIBase
	}

	if err := s.connectGateway(); err != nil {
		return nil, err
	}
	if err := s.identify(); err != nil {
		s.teardown()
		return nil, err
	}
	s.startPump()
	return s, nil
}

// UserID returns the bot's own user id, learned from ready.
func (s *Session) UserID() string { return s.userID }

// SessionID returns the gateway session id, learned from ready.
func (s *Session) SessionID() string { return s.sessionID }

// LastSequence returns the most recent dispatch sequence number.
func (s *Session) LastSequence() uint64 { return s.lastSeq }

// Next returns the next caller-visible event. It races the heartbeat
// timer against inbound messages, preferring the timer when both are
// ready so keepalive is never starved by traffic. Peer close with code
// 1001 triggers an internal resume; every other failure is returned and
// leaves the session dead.
func (s *Session) Next() (*Event, error) {
	for {
		// Timer first: a pending tick must win over a burst of frames.
		select {
		case <-s.heartbeat.C:
			if err := s.heartbeatTick(); err != nil {
				return nil, err
			}
			continue
		default:
		}

		select {
		case <-s.heartbeat.C:
			if err := s.heartbeatTick(); err != nil {
				return nil, err
			}
		case in := <-s.inbound:
			if in.err != nil {
				return nil, in.err
			}
			ev, resume, err := s.handleMessage(in.msg)
			if err != nil {
				return nil, err
			}
			if resume {
				if err := s.resume(); err != nil {
					return nil, err
				}
				continue
			}
			if ev != nil {
				s.eventsDelivered.Add(1)
				return ev, nil
			}
		}
	}
}

// Close tears down the transport and stops the heartbeat. The session
// cannot be reused afterwards.
func (s *Session) Close() error {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	return s.teardown()
}

// Stats returns a snapshot of session counters.
func (s *Session) Stats() map[string]int64 {
	return map[string]int64{
		"events_delivered":  s.eventsDelivered.Load(),
		"messages_received": s.messagesReceived.Load(),
		"heartbeats_sent":   s.heartbeatsSent.Load(),
		"resumes_completed": s.resumesCompleted.Load(),
	}
}

// heartbeatTick sends a heartbeat carrying the last sequence. A tick
// arriving while the previous heartbeat is still unacknowledged is fatal.
func (s *Session) heartbeatTick() error {
	if s.pendingAck {
		return ErrNoAck
	}
	if err := sendPayload(s, payload[uint64]{Op: opHeartbeat, D: s.lastSeq}); err != nil {
		return err
	}
	s.pendingAck = true
	s.heartbeatsSent.Add(1)
	return nil
}

// handleMessage interprets one inbound message. It returns a non-nil
// event for "message create" dispatches, resume=true for a "going away"
// close, and absorbs everything else the protocol defines.
func (s *Session) handleMessage(msg *protocol.Message) (ev *Event, resume bool, err error) {
	s.messagesReceived.Add(1)

	switch msg.Kind() {
	case protocol.KindText:
		var pr probe
		if err := sonnet.Unmarshal([]byte(msg.Text()), &pr); err != nil {
			return nil, false, fmt.Errorf("gateway payload decode: %w", err)
		}
		if pr.S != nil {
			s.lastSeq = *pr.S
		}
		if pr.Op == opHeartbeatAck {
			s.pendingAck = false
		}
		if pr.T != nil && *pr.T == eventMessageCreate {
			var mc payload[messageReceived]
			if err := sonnet.Unmarshal([]byte(msg.Text()), &mc); err != nil {
				return nil, false, fmt.Errorf("dispatch decode: %w", err)
			}
			return eventFrom(mc.D, s.userID), false, nil
		}
		return nil, false, nil

	case protocol.KindClose:
		if code, _, ok := msg.CloseInfo(); ok {
			if code == closeGoingAway {
				return nil, true, nil
			}
			return nil, false, &UnexpectedMessageError{Kind: "close", CloseCode: code}
		}
		return nil, false, &UnexpectedMessageError{Kind: "close"}

	default:
		return nil, false, &UnexpectedMessageError{Kind: msg.Kind().String()}
	}
}

// closeGoingAway is the peer's "please resume" close code.
const closeGoingAway = 1001

// connectGateway resolves the gateway URL, dials, upgrades, verifies the
// handshake, consumes hello and arms the heartbeat timer.
func (s *Session) connectGateway() error {
	body, err := s.apiGet("/gateway/bot")
	if err != nil {
		return err
	}
	var info gatewayInfo
	if err := sonnet.Unmarshal(body, &info); err != nil {
		return fmt.Errorf("gateway url decode: %w", err)
	}

	u, err := url.Parse(info.URL + gatewayQuery)
	if err != nil {
		return fmt.Errorf("gateway url parse: %w", err)
	}

	raw, err := transport.Dial(u)
	if err != nil {
		return err
	}

	key, err := protocol.GenerateRequestKey(s.rng)
	if err != nil {
		raw.Close()
		return err
	}

	header := http.Header{}
	header.Set("Authorization", s.authHeader)
	header.Set("Upgrade", "websocket")
	header.Set("Connection", "upgrade")
	header.Set("Sec-WebSocket-Version", "13")
	header.Set("Sec-WebSocket-Key", key.String())

	resp, conn, err := transport.Upgrade(raw, u, header)
	if err != nil {
		raw.Close()
		return err
	}
	if err := verifyUpgrade(key, resp); err != nil {
		raw.Close()
		return err
	}
	s.conn = conn

	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		raw.Close()
		return err
	}
	if msg.Kind() != protocol.KindText {
		raw.Close()
		return &UnexpectedMessageError{Kind: msg.Kind().String()}
	}
	var hel payload[helloData]
	if err := sonnet.Unmarshal([]byte(msg.Text()), &hel); err != nil {
		raw.Close()
		return fmt.Errorf("hello decode: %w", err)
	}
	if hel.Op != opHello {
		raw.Close()
		return fmt.Errorf("expected hello, got op %d", hel.Op)
	}

	interval := time.Duration(hel.D.HeartbeatInterval) * time.Millisecond
	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	s.heartbeat = time.NewTicker(interval)
	s.heartbeatInterval = interval
	s.pendingAck = false
	return nil
}

// identify performs the fresh-connect identify exchange and records the
// session id, user id and initial sequence from ready.
func (s *Session) identify() error {
	compress := false
	guildSubs := false
	bits := uint32(s.intents)
	pl := payload[identifyData]{
		Op: opIdentify,
		D: identifyData{
			Token: s.token,
			Properties: identifyProperties{
				OS:      "linux",
				Browser: "gatecord",
				Device:  "server",
			},
			Compress:           &compress,
			GuildSubscriptions: &guildSubs,
			Intents:            &bits,
		},
	}
	if err := sendPayload(s, pl); err != nil {
		return err
	}

	msg, err := protocol.ReadMessage(s.conn)
	if err != nil {
		return err
	}
	if msg.Kind() != protocol.KindText {
		return &UnexpectedMessageError{Kind: msg.Kind().String()}
	}
	var rdy payload[readyData]
	if err := sonnet.Unmarshal([]byte(msg.Text()), &rdy); err != nil {
		return fmt.Errorf("ready decode: %w", err)
	}

	if rdy.S != nil {
		s.lastSeq = *rdy.S
	} else {
		s.lastSeq = 0
	}
	s.sessionID = rdy.D.SessionID
	s.userID = rdy.D.User.ID
	return nil
}

// resume swaps the transport underneath the session: re-dial, re-upgrade,
// fresh hello, then replay (token, session id, seq) instead of identify.
// Session id, sequence and credential carry over; nothing else does.
func (s *Session) resume() error {
	s.teardown()
	if err := s.connectGateway(); err != nil {
		return err
	}
	pl := payload[resumeData]{
		Op: opResume,
		D: resumeData{
			Token:     s.token,
			SessionID: s.sessionID,
			Seq:       s.lastSeq,
		},
	}
	if err := sendPayload(s, pl); err != nil {
		return err
	}
	s.startPump()
	s.resumesCompleted.Add(1)
	return nil
}

// startPump launches the reader goroutine for the current transport. The
// pump parks on the done channel if its messages are no longer wanted.
func (s *Session) startPump() {
	s.done = make(chan struct{})
	s.inbound = make(chan inboundMessage, 1)

	conn, inbound, done := s.conn, s.inbound, s.done
	go func() {
		for {
			msg, err := protocol.ReadMessage(conn)
			select {
			case inbound <- inboundMessage{msg: msg, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

// teardown releases the current transport and unblocks its pump.
func (s *Session) teardown() error {
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// sendPayload serializes the envelope and writes it as one masked text
// frame.
func sendPayload[D any](s *Session, pl payload[D]) error {
	data, err := sonnet.Marshal(pl)
	if err != nil {
		return fmt.Errorf("gateway payload encode: %w", err)
	}
	return protocol.Write(s.conn, protocol.KindText, data, protocol.RoleClient, s.rng)
}

// verifyUpgrade checks the upgrade response: 101 status, Upgrade and
// Connection header tokens (case-insensitively), and the accept key
// derived from our nonce. Any mismatch fails with the raw response
// attached.
func verifyUpgrade(key protocol.RequestKey, resp *http.Response) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return &HandshakeError{Response: resp}
	}
	if !strings.EqualFold(resp.Header.Get("Upgrade"), "websocket") {
		return &HandshakeError{Response: resp}
	}
	if !strings.EqualFold(resp.Header.Get("Connection"), "upgrade") {
		return &HandshakeError{Response: resp}
	}
	accept, err := protocol.ParseResponseKey(resp.Header.Get("Sec-WebSocket-Accept"))
	if err != nil || !key.Verify(accept) {
		return &HandshakeError{Response: resp}
	}
	return nil
}
