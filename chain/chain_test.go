// File: chain/chain_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package chain

import (
	"bytes"
	"math/rand"
	"testing"
)

// A chain fed exactly one input has no branching, so generation must
// reproduce the input regardless of the seed.
func TestGenerateSingleInput(t *testing.T) {
	c := New(3)
	c.Feed([]byte("hello world"))

	for seed := int64(0); seed < 5; seed++ {
		rng := rand.New(rand.NewSource(seed))
		got := c.Generate(rng, 100)
		if !bytes.Equal(got, []byte("hello world")) {
			t.Errorf("seed %d: got %q, want %q", seed, got, "hello world")
		}
	}
}

func TestGenerateEmptyChain(t *testing.T) {
	c := New(8)
	rng := rand.New(rand.NewSource(1))
	if got := c.Generate(rng, 100); got != nil {
		t.Errorf("empty chain generated %q", got)
	}
}

// Inputs shorter than the window are learned as a single whole segment.
func TestFeedShortInput(t *testing.T) {
	c := New(8)
	c.Feed([]byte("hi"))

	rng := rand.New(rand.NewSource(1))
	if got := c.Generate(rng, 100); !bytes.Equal(got, []byte("hi")) {
		t.Errorf("got %q, want hi", got)
	}
}

func TestFeedEmptyInputIsIgnored(t *testing.T) {
	c := New(8)
	c.Feed(nil)
	if len(c.values) != 0 {
		t.Errorf("empty feed created %d states", len(c.values))
	}
}

func TestGenerateHonorsCap(t *testing.T) {
	c := New(3)
	// Loop: "aaaa" produces the self-transition "aaa" -> "aaa".
	c.Feed(bytes.Repeat([]byte("a"), 64))

	rng := rand.New(rand.NewSource(1))
	got := c.Generate(rng, 10)
	if len(got) > 10 {
		t.Errorf("generated %d bytes, cap is 10", len(got))
	}
}

func TestWindowsSlideByOne(t *testing.T) {
	c := New(3)
	got := c.windows([]byte("abcde"))
	want := []string{"abc", "bcd", "cde"}
	if len(got) != len(want) {
		t.Fatalf("got %d windows, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("window %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// Two inputs sharing a prefix create a branch; every generated message must
// still be one of the observed continuations.
func TestGenerateBranches(t *testing.T) {
	c := New(4)
	c.Feed([]byte("go fast"))
	c.Feed([]byte("go far"))

	rng := rand.New(rand.NewSource(42))
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		seen[string(c.Generate(rng, 100))] = true
	}
	for msg := range seen {
		if msg != "go fast" && msg != "go far" {
			t.Errorf("unexpected generation %q", msg)
		}
	}
	if len(seen) != 2 {
		t.Errorf("expected both branches over 200 samples, saw %d", len(seen))
	}
}

func TestWeightedSetSampleEmpty(t *testing.T) {
	ws := newWeightedSet()
	rng := rand.New(rand.NewSource(1))
	if got := ws.sample(rng); got.ok {
		t.Errorf("empty set sampled %q", got.s)
	}
}
