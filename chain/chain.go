// File: chain/chain.go
// Package chain implements a weighted markov chain over fixed-size byte
// windows, fed from message text and sampled to generate replies.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package chain

import "math/rand"

// token is a chain state: a byte window, or the sentinel marking the
// start and end of an input.
type token struct {
	ok bool
	s  string
}

var sentinel = token{}

// weightedSet counts occurrences and samples proportionally to them.
type weightedSet struct {
	values map[token]int
	total  int
}

func newWeightedSet() *weightedSet {
	return &weightedSet{values: make(map[token]int)}
}

func (w *weightedSet) insert(t token) {
	w.values[t]++
	w.total++
}

// sample draws a token with probability weight/total. Returns the
// sentinel when the set is empty.
func (w *weightedSet) sample(rng *rand.Rand) token {
	if w.total == 0 {
		return sentinel
	}
	selected := rng.Intn(w.total) + 1
	accum := 0
	for t, weight := range w.values {
		accum += weight
		if accum >= selected {
			return t
		}
	}
	return sentinel
}

// Chain maps each window to the weighted set of windows observed after
// it. The sentinel bounds every fed input on both sides, so generation
// learns where messages start and stop.
type Chain struct {
	values map[token]*weightedSet
	window int
}

// New creates a chain with the given window length.
func New(window int) *Chain {
	return &Chain{
		values: make(map[token]*weightedSet),
		window: window,
	}
}

// windows returns every window-sized slice of b, sliding by one byte.
// Inputs shorter than the window yield themselves as a single window.
func (c *Chain) windows(b []byte) []string {
	last := len(b) - c.window
	if last < 0 {
		last = 0
	}
	out := make([]string, 0, last+1)
	for i := 0; i <= last; i++ {
		end := min(len(b), i+c.window)
		out = append(out, string(b[i:end]))
	}
	return out
}

// Feed records the transition pairs of one input, sentinel-bounded:
// for "abcde" with window 3 that is (∅,"abc"), ("abc","bcd"),
// ("bcd","cde"), ("cde",∅).
func (c *Chain) Feed(b []byte) {
	if len(b) == 0 {
		return
	}
	prev := sentinel
	for _, w := range c.windows(b) {
		next := token{ok: true, s: w}
		c.set(prev).insert(next)
		prev = next
	}
	c.set(prev).insert(sentinel)
}

func (c *Chain) set(t token) *weightedSet {
	ws := c.values[t]
	if ws == nil {
		ws = newWeightedSet()
		c.values[t] = ws
	}
	return ws
}

// Generate walks the chain from the start sentinel: the first segment is
// emitted whole, every following segment contributes its last byte. The
// walk stops at an end sentinel or once max bytes are emitted.
func (c *Chain) Generate(rng *rand.Rand, max int) []byte {
	cur := c.step(sentinel, rng)
	if !cur.ok {
		return nil
	}

	out := make([]byte, 0, max)
	out = append(out, cur.s...)
	for len(out) < max {
		next := c.step(cur, rng)
		if !next.ok {
			break
		}
		out = append(out, next.s[len(next.s)-1])
		cur = next
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func (c *Chain) step(from token, rng *rand.Rand) token {
	ws := c.values[from]
	if ws == nil {
		return sentinel
	}
	return ws.sample(rng)
}
