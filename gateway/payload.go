// File: gateway/payload.go
// Package gateway implements one logical session against the real-time
// event gateway: upgrade handshake, hello/identify, heartbeats, sequence
// tracking, resume, dispatch decoding and the REST history reader.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session-protocol payloads are JSON envelopes with an integer opcode,
// a data field, and optional sequence number and event type.

package gateway

// Gateway opcodes.
const (
	opDispatch     = 0
	opHeartbeat    = 1
	opIdentify     = 2
	opResume       = 6
	opHello        = 10
	opHeartbeatAck = 11
)

const eventMessageCreate = "MESSAGE_CREATE"

// payload is the protocol envelope. D is the opcode-specific data shape;
// decoding happens in two passes (probe first, full payload when the
// event type is interesting), so no raw-message buffering is needed.
type payload[D any] struct {
	Op int     `json:"op"`
	D  D       `json:"d"`
	S  *uint64 `json:"s,omitempty"`
	T  *string `json:"t,omitempty"`
}

// probe decodes just the envelope fields shared by every payload.
type probe struct {
	Op int     `json:"op"`
	S  *uint64 `json:"s"`
	T  *string `json:"t"`
}

type helloData struct {
	HeartbeatInterval uint64 `json:"heartbeat_interval"` // milliseconds
}

type identifyData struct {
	Token              string             `json:"token"`
	Properties         identifyProperties `json:"properties"`
	Compress           *bool              `json:"compress,omitempty"`
	GuildSubscriptions *bool              `json:"guild_subscriptions,omitempty"`
	Intents            *uint32            `json:"intents,omitempty"`
}

type identifyProperties struct {
	OS      string `json:"$os"`
	Browser string `json:"$browser"`
	Device  string `json:"$device"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
}

type readyData struct {
	SessionID string `json:"session_id"`
	User      user   `json:"user"`
}

type user struct {
	ID string `json:"id"`
}

type messageReceived struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Content   string `json:"content"`
	Mentions  []user `json:"mentions"`
	Author    user   `json:"author"`
}

type gatewayInfo struct {
	URL string `json:"url"`
}

type createMessage struct {
	Content string `json:"content"`
}
