// File: gateway/session_integration_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// End-to-end session tests against a scripted in-process gateway. The
// mock serves the URL-discovery endpoint over httptest and speaks the
// session protocol over a real websocket upgrade, which exercises the
// dial, upgrade, codec and session layers together.

package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
)

type mockGateway struct {
	t   *testing.T
	srv *httptest.Server
	// script runs once per websocket connection; n counts connections
	// starting at 1.
	script func(n int, conn *websocket.Conn)
	conns  atomic.Int32
}

func newMockGateway(t *testing.T, script func(n int, conn *websocket.Conn)) *mockGateway {
	m := &mockGateway{t: t, script: script}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/gateway/bot", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); !strings.HasPrefix(got, "Bot ") {
			t.Errorf("gateway info Authorization: got %q", got)
		}
		wsURL := "ws://" + r.Host + "/ws"
		fmt.Fprintf(w, `{"url":%q}`, wsURL)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.RawQuery; got != "v=6&encoding=json" {
			t.Errorf("gateway query: got %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("mock upgrade: %v", err)
			return
		}
		defer conn.Close()
		m.script(int(m.conns.Add(1)), conn)
	})

	m.srv = httptest.NewServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

func (m *mockGateway) config() Config {
	return Config{
		Token:   "test-token",
		Intents: IntentGuildMessages | IntentDirectMessages,
		APIBase: m.srv.URL + "/api",
	}
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := sonnet.Marshal(v)
	if err != nil {
		t.Errorf("mock encode: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Errorf("mock write: %v", err)
	}
}

func sendHello(t *testing.T, conn *websocket.Conn, intervalMS uint64) {
	sendJSON(t, conn, payload[helloData]{Op: opHello, D: helloData{HeartbeatInterval: intervalMS}})
}

func sendReady(t *testing.T, conn *websocket.Conn, sessionID, userID string, seq uint64) {
	typ := "READY"
	sendJSON(t, conn, payload[readyData]{
		Op: opDispatch,
		D:  readyData{SessionID: sessionID, User: user{ID: userID}},
		S:  &seq, T: &typ,
	})
}

func sendDispatch(t *testing.T, conn *websocket.Conn, mc messageReceived, seq uint64) {
	typ := eventMessageCreate
	sendJSON(t, conn, payload[messageReceived]{Op: opDispatch, D: mc, S: &seq, T: &typ})
}

func readIdentify(t *testing.T, conn *websocket.Conn) identifyData {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("mock read identify: %v", err)
		return identifyData{}
	}
	var idn payload[identifyData]
	if err := sonnet.Unmarshal(data, &idn); err != nil {
		t.Errorf("identify decode: %v", err)
		return identifyData{}
	}
	if idn.Op != opIdentify {
		t.Errorf("expected identify, got op %d", idn.Op)
	}
	return idn.D
}

// TestSessionConnectAndDispatch — the full fresh-connect exchange: hello,
// identify, ready, then a dispatched message surfacing through Next.
func TestSessionConnectAndDispatch(t *testing.T) {
	m := newMockGateway(t, func(n int, conn *websocket.Conn) {
		sendHello(t, conn, 600000)
		idn := readIdentify(t, conn)
		if idn.Token != "test-token" {
			t.Errorf("identify token: got %q", idn.Token)
		}
		if idn.Intents == nil || Intents(*idn.Intents) != IntentGuildMessages|IntentDirectMessages {
			t.Errorf("identify intents: got %v", idn.Intents)
		}
		sendReady(t, conn, "sess-1", "bot-1", 1)
		sendDispatch(t, conn, messageReceived{
			ID: "m1", ChannelID: "c1", GuildID: "g1", Content: "hello <@bot-1>",
			Author: user{ID: "u9"}, Mentions: []user{{ID: "bot-1"}},
		}, 2)
		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	})

	sess, err := Connect(m.config())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	if sess.UserID() != "bot-1" || sess.SessionID() != "sess-1" {
		t.Errorf("identity: user=%q session=%q", sess.UserID(), sess.SessionID())
	}
	if sess.LastSequence() != 1 {
		t.Errorf("sequence after ready: got %d, want 1", sess.LastSequence())
	}

	ev, err := sess.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.MessageID != "m1" || ev.ChannelID != "c1" || !ev.MentionsMe || ev.IsMe {
		t.Errorf("event: %+v", ev)
	}
	if sess.LastSequence() != 2 {
		t.Errorf("sequence after dispatch: got %d, want 2", sess.LastSequence())
	}
}

// TestSessionHeartbeat — the session emits op 1 heartbeats carrying the last
// sequence and keeps running as long as the peer acks them.
func TestSessionHeartbeat(t *testing.T) {
	m := newMockGateway(t, func(n int, conn *websocket.Conn) {
		sendHello(t, conn, 30)
		readIdentify(t, conn)
		sendReady(t, conn, "sess-1", "bot-1", 5)

		acked := 0
		for acked < 2 {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var hb payload[uint64]
			if err := sonnet.Unmarshal(data, &hb); err != nil || hb.Op != opHeartbeat {
				t.Errorf("expected heartbeat, got %s", data)
				return
			}
			if hb.D != 5 {
				t.Errorf("heartbeat seq: got %d, want 5", hb.D)
			}
			sendJSON(t, conn, payload[struct{}]{Op: opHeartbeatAck})
			acked++
		}
		sendDispatch(t, conn, messageReceived{ID: "m-done", ChannelID: "c1", Author: user{ID: "u1"}}, 6)
		conn.ReadMessage()
	})

	sess, err := Connect(m.config())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	ev, err := sess.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.MessageID != "m-done" {
		t.Errorf("event: %+v", ev)
	}
	if got := sess.Stats()["heartbeats_sent"]; got < 2 {
		t.Errorf("heartbeats_sent: got %d, want >= 2", got)
	}
}

// TestSessionNoAck — a silent peer kills the session on the second tick.
func TestSessionNoAck(t *testing.T) {
	m := newMockGateway(t, func(n int, conn *websocket.Conn) {
		sendHello(t, conn, 20)
		readIdentify(t, conn)
		sendReady(t, conn, "sess-1", "bot-1", 1)
		// Swallow heartbeats without acking.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	sess, err := Connect(m.config())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	done := make(chan error, 1)
	go func() {
		_, err := sess.Next()
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrNoAck) {
			t.Errorf("got %v, want ErrNoAck", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not fail on missing ack")
	}
}

// TestSessionResume — close 1001 makes the session re-dial and replay
// (token, session id, seq) instead of identifying again.
func TestSessionResume(t *testing.T) {
	m := newMockGateway(t, func(n int, conn *websocket.Conn) {
		sendHello(t, conn, 600000)
		switch n {
		case 1:
			readIdentify(t, conn)
			sendReady(t, conn, "sess-9", "bot-1", 5)
			sendDispatch(t, conn, messageReceived{ID: "m1", ChannelID: "c1", Author: user{ID: "u1"}}, 6)
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(1001, "going away"))
			conn.ReadMessage()
		case 2:
			_, data, err := conn.ReadMessage()
			if err != nil {
				t.Errorf("mock read resume: %v", err)
				return
			}
			var res payload[resumeData]
			if err := sonnet.Unmarshal(data, &res); err != nil || res.Op != opResume {
				t.Errorf("expected resume, got %s", data)
				return
			}
			if res.D.SessionID != "sess-9" || res.D.Seq != 6 || res.D.Token != "test-token" {
				t.Errorf("resume payload: %+v", res.D)
			}
			sendDispatch(t, conn, messageReceived{ID: "m2", ChannelID: "c1", Author: user{ID: "u1"}}, 7)
			conn.ReadMessage()
		}
	})

	sess, err := Connect(m.config())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	ev, err := sess.Next()
	if err != nil || ev.MessageID != "m1" {
		t.Fatalf("first event: ev=%+v err=%v", ev, err)
	}

	// The next call swallows the close, resumes transparently and
	// delivers the post-resume dispatch.
	ev, err = sess.Next()
	if err != nil {
		t.Fatalf("Next across resume failed: %v", err)
	}
	if ev.MessageID != "m2" {
		t.Errorf("post-resume event: %+v", ev)
	}
	if sess.SessionID() != "sess-9" {
		t.Errorf("session id after resume: %q", sess.SessionID())
	}
	if got := sess.Stats()["resumes_completed"]; got != 1 {
		t.Errorf("resumes_completed: got %d, want 1", got)
	}
	if got := m.conns.Load(); got != 2 {
		t.Errorf("connections: got %d, want 2", got)
	}
}

// A non-1001 close is surfaced to the caller, who owns reconnect policy.
func TestSessionUnexpectedClose(t *testing.T) {
	m := newMockGateway(t, func(n int, conn *websocket.Conn) {
		sendHello(t, conn, 600000)
		readIdentify(t, conn)
		sendReady(t, conn, "sess-1", "bot-1", 1)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(4000, "unknown error"))
		conn.ReadMessage()
	})

	sess, err := Connect(m.config())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	_, err = sess.Next()
	var ume *UnexpectedMessageError
	if !errors.As(err, &ume) || ume.CloseCode != 4000 {
		t.Errorf("got %v, want close 4000", err)
	}
	if got := m.conns.Load(); got != 1 {
		t.Errorf("connections: got %d, want 1", got)
	}
}

// A handshake served by something that is not a websocket endpoint fails
// Connect with a HandshakeError.
func TestSessionHandshakeRejected(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/api/gateway/bot", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"url":%q}`, "ws://"+r.Host+"/nope")
	})
	mux.HandleFunc("/nope", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no upgrades here", http.StatusBadRequest)
	})

	_, err := Connect(Config{Token: "t", APIBase: srv.URL + "/api"})
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Errorf("got %v, want HandshakeError", err)
	}
}
