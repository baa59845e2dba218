// File: gateway/event.go
// Package gateway
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package gateway

// Event is the caller-visible shape of a "message create" dispatch,
// combined with what the session knows about itself.
type Event struct {
	ChannelID  string
	GuildID    string // empty outside guilds
	MessageID  string
	AuthorID   string
	Content    string
	IsMe       bool // authored by the session's own user
	MentionsMe bool
}

func eventFrom(mc messageReceived, userID string) *Event {
	mentionsMe := false
	for _, u := range mc.Mentions {
		if u.ID == userID {
			mentionsMe = true
			break
		}
	}
	return &Event{
		ChannelID:  mc.ChannelID,
		GuildID:    mc.GuildID,
		MessageID:  mc.ID,
		AuthorID:   mc.Author.ID,
		Content:    mc.Content,
		IsMe:       mc.Author.ID == userID,
		MentionsMe: mentionsMe,
	}
}
