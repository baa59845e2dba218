// File: cmd/reactbot/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reaction bot. Watches gateway traffic and slaps an emoji reaction on
// any message matching one of the patterns in the mention file. The
// file is re-read whenever its mtime changes, so rules can be edited
// without restarting the bot.

package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/momentics/gatecord/gateway"
	"github.com/momentics/gatecord/mentions"
)

const reconnectDelay = 5 * time.Second

func main() {
	var (
		token = flag.String("token", "", "bot token")
		file  = flag.String("mention-file", "", "pattern file mapping regexes to emoji")
	)
	flag.Parse()

	if *token == "" || *file == "" {
		log.Println("[reactbot] -token and -mention-file are required")
		os.Exit(2)
	}

	set, err := mentions.Load(*file)
	if err != nil {
		log.Printf("[reactbot] mention file: %v", err)
		os.Exit(1)
	}
	log.Printf("[reactbot] loaded %d patterns", set.Len())

	for {
		sess := connect(*token)
		serve(sess, set)
		sess.Close()
	}
}

func connect(token string) *gateway.Session {
	for {
		sess, err := gateway.Connect(gateway.Config{
			Token:   token,
			Intents: gateway.IntentGuildMessages | gateway.IntentDirectMessages,
		})
		if err == nil {
			log.Println("[reactbot] connected")
			return sess
		}
		log.Printf("[reactbot] connect: %v", err)
		time.Sleep(reconnectDelay)
	}
}

// serve pumps events until the session fails.
func serve(sess *gateway.Session, set *mentions.Set) {
	for {
		ev, err := sess.Next()
		if err != nil {
			log.Printf("[reactbot] session: %v", err)
			return
		}
		if ev.IsMe {
			continue
		}
		set.Refresh()
		emoji, ok := set.FirstMatch([]byte(ev.Content))
		if !ok {
			continue
		}
		go func(channelID, messageID, emoji string) {
			if err := sess.AddReaction(channelID, messageID, emoji); err != nil {
				log.Printf("[reactbot] react: %v", err)
			}
		}(ev.ChannelID, ev.MessageID, emoji)
	}
}
