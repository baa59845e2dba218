// File: cmd/markovbot/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Markov chatterbot. Listens on the gateway, feeds every message it
// sees into per-channel (or per-guild) Markov chains, and replies with
// a generated message whenever someone mentions it. New channels get
// their recent history backfilled into the chain in the background.

package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"time"
	"unicode/utf8"

	"github.com/momentics/gatecord/affinity"
	"github.com/momentics/gatecord/chain"
	"github.com/momentics/gatecord/gateway"
	"github.com/momentics/gatecord/store"
)

const (
	// Discord rejects message bodies above this many bytes.
	maxMessageLen = 2000
	// Generated text is resampled this many times before giving up on
	// producing valid UTF-8 inside the length cap.
	generateTries = 10
	// How long to wait before retrying a failed reconnect.
	reconnectDelay = 5 * time.Second
)

type liveResult struct {
	ev  *gateway.Event
	err error
}

// backlogItem carries a backfilled event together with the guild the
// channel belongs to, since REST history payloads omit guild_id.
type backlogItem struct {
	ev      *gateway.Event
	guildID string
}

type bot struct {
	token      string
	chainLen   int
	backlogLen int
	wholeGuild bool

	rng     *rand.Rand
	archive *store.Archive

	// Chains keyed by channel ID, or by guild ID when wholeGuild is
	// set (channel-keyed entries still appear for DMs, which have no
	// guild).
	chains map[string]*chain.Chain

	// Channels whose history backfill has already been kicked off.
	seen map[string]bool

	backlog chan backlogItem
}

func main() {
	var (
		token      = flag.String("token", "", "bot token")
		chainLen   = flag.Int("chain-len", 8, "Markov window length in bytes")
		backlogLen = flag.Int("backlog-len", 100, "messages of history to backfill per channel")
		wholeGuild = flag.Bool("whole-guild-logs", false, "share one chain per guild instead of per channel")
		storePath  = flag.String("store", "", "optional sqlite archive path")
		cpu        = flag.Int("cpu", -1, "pin the process to this CPU (-1 to disable)")
	)
	flag.Parse()

	if *token == "" {
		log.Println("[markovbot] -token is required")
		os.Exit(2)
	}
	if *cpu >= 0 {
		if err := affinity.Pin(*cpu); err != nil {
			log.Printf("[markovbot] cpu pin: %v", err)
		}
	}

	b := &bot{
		token:      *token,
		chainLen:   *chainLen,
		backlogLen: *backlogLen,
		wholeGuild: *wholeGuild,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		chains:     make(map[string]*chain.Chain),
		seen:       make(map[string]bool),
		backlog:    make(chan backlogItem, 256),
	}

	if *storePath != "" {
		archive, err := store.Open(*storePath)
		if err != nil {
			log.Printf("[markovbot] archive open: %v", err)
			os.Exit(1)
		}
		defer archive.Close()
		b.archive = archive
		if err := b.warmFromArchive(); err != nil {
			log.Printf("[markovbot] archive replay: %v", err)
			os.Exit(1)
		}
	}

	b.run()
}

func (b *bot) run() {
	sess := b.connect()
	live := startLive(sess)

	for {
		// Live traffic takes priority over backfill so replies stay
		// responsive while old history streams in.
		var r liveResult
		select {
		case r = <-live:
		default:
			select {
			case r = <-live:
			case item := <-b.backlog:
				b.learn(item.ev, item.guildID)
				continue
			}
		}

		if r.err != nil {
			log.Printf("[markovbot] session: %v", r.err)
			sess.Close()
			sess = b.connect()
			live = startLive(sess)
			continue
		}
		b.handle(sess, r.ev)
	}
}

// connect dials until a session is established. Chains built so far
// survive reconnects.
func (b *bot) connect() *gateway.Session {
	for {
		sess, err := gateway.Connect(gateway.Config{
			Token:   b.token,
			Intents: gateway.IntentGuildMessages | gateway.IntentDirectMessages,
		})
		if err == nil {
			log.Println("[markovbot] connected")
			return sess
		}
		log.Printf("[markovbot] connect: %v", err)
		time.Sleep(reconnectDelay)
	}
}

func startLive(sess *gateway.Session) <-chan liveResult {
	ch := make(chan liveResult)
	go func() {
		for {
			ev, err := sess.Next()
			ch <- liveResult{ev: ev, err: err}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

func (b *bot) handle(sess *gateway.Session, ev *gateway.Event) {
	if !b.seen[ev.ChannelID] {
		b.seen[ev.ChannelID] = true
		b.backfill(sess, ev.ChannelID, ev.GuildID)
	}

	if ev.IsMe || ev.Content == "" {
		return
	}
	if !ev.MentionsMe {
		b.learn(ev, ev.GuildID)
		return
	}

	reply := b.generate(ev.GuildID, ev.ChannelID)
	if reply == "" {
		log.Printf("[markovbot] no message to build for %s", ev.ChannelID)
		return
	}
	go func(channelID, reply string) {
		if err := sess.SendMessage(channelID, reply); err != nil {
			log.Printf("[markovbot] send: %v", err)
		}
	}(ev.ChannelID, reply)
}

// backfill streams the channel's recent history into the backlog
// channel. Rate limiting happens inside History, so each channel gets
// its own goroutine.
func (b *bot) backfill(sess *gateway.Session, channelID, guildID string) {
	h := sess.History(channelID, b.backlogLen, "")
	go func() {
		for {
			ev, err := h.Next()
			if err != nil {
				log.Printf("[markovbot] backlog %s: %v", channelID, err)
				return
			}
			if ev == nil {
				return
			}
			b.backlog <- backlogItem{ev: ev, guildID: guildID}
		}
	}()
}

func (b *bot) learn(ev *gateway.Event, guildID string) {
	if b.archive != nil {
		if err := b.archive.Insert(ev); err != nil {
			log.Printf("[markovbot] archive insert: %v", err)
		}
	}
	if ev.IsMe || ev.MentionsMe || ev.Content == "" {
		return
	}
	b.chainFor(guildID, ev.ChannelID).Feed([]byte(ev.Content))
}

func (b *bot) chainFor(guildID, channelID string) *chain.Chain {
	key := channelID
	if b.wholeGuild && guildID != "" {
		key = guildID
	}
	c, ok := b.chains[key]
	if !ok {
		c = chain.New(b.chainLen)
		b.chains[key] = c
	}
	return c
}

// generate samples the chain until it produces valid UTF-8 that fits
// in a Discord message, or runs out of tries.
func (b *bot) generate(guildID, channelID string) string {
	c := b.chainFor(guildID, channelID)
	for i := 0; i < generateTries; i++ {
		msg := c.Generate(b.rng, maxMessageLen)
		if len(msg) > 0 && utf8.Valid(msg) {
			return string(msg)
		}
	}
	return ""
}

func (b *bot) warmFromArchive() error {
	n := 0
	err := b.archive.Replay(func(ev *gateway.Event) error {
		if !ev.IsMe && !ev.MentionsMe && ev.Content != "" {
			b.chainFor(ev.GuildID, ev.ChannelID).Feed([]byte(ev.Content))
			n++
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("[markovbot] warmed chains from %d archived messages", n)
	return nil
}
