// File: gateway/intents.go
// Package gateway
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package gateway

// Intents is the event-subscription bitset sent with identify.
type Intents uint32

// Intent bits, in wire order.
const (
	IntentGuilds Intents = 1 << iota
	IntentGuildMembers
	IntentGuildBans
	IntentGuildEmojis
	IntentGuildIntegrations
	IntentGuildWebhooks
	IntentGuildInvites
	IntentGuildVoiceStates
	IntentGuildPresences
	IntentGuildMessages
	IntentGuildMessageReactions
	IntentGuildMessageTyping
	IntentDirectMessages
	IntentDirectMessageReactions
	IntentDirectMessageTyping
)

// Has reports whether every bit of other is set in i.
func (i Intents) Has(other Intents) bool {
	return i&other == other
}
