// File: mentions/mentions.go
// Package mentions maps regular expressions to reaction emoji, loaded
// from a config file that hot-reloads when its modification time moves.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// File format: a line of regular text names an emoji; every indented
// line beneath it is a case-insensitive regular expression matched
// against message content. Lines starting with "# " are comments.

package mentions

import (
	"log"
	"os"
	"regexp"
	"strings"
	"time"
)

type rule struct {
	re    *regexp.Regexp
	emoji string
}

// Set is one parsed mentions file plus the metadata needed to reload it.
type Set struct {
	path         string
	lastModified time.Time
	rules        []rule
}

// Load parses the mentions file at path. Invalid regular expressions and
// matcher lines without a preceding emoji are logged and skipped rather
// than failing the whole file.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	s := &Set{path: path, lastModified: info.ModTime()}
	currentEmoji := ""
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "# ") {
			continue
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			re, err := regexp.Compile("(?i)" + trimmed)
			if err != nil {
				log.Printf("[mentions] invalid regex: %s", trimmed)
				continue
			}
			if currentEmoji == "" {
				log.Printf("[mentions] no emoji found for regex: %s", trimmed)
				continue
			}
			s.rules = append(s.rules, rule{re: re, emoji: currentEmoji})
		} else {
			currentEmoji = trimmed
		}
	}
	return s, nil
}

// Refresh re-parses the file when it has changed since the last load.
// Errors are ignored in favor of the last good mapping.
func (s *Set) Refresh() {
	info, err := os.Stat(s.path)
	if err != nil {
		return
	}
	if !info.ModTime().After(s.lastModified) {
		return
	}
	fresh, err := Load(s.path)
	if err != nil {
		return
	}
	*s = *fresh
}

// FirstMatch returns the emoji of the first rule matching the content.
func (s *Set) FirstMatch(content []byte) (string, bool) {
	for _, r := range s.rules {
		if r.re.Match(content) {
			return r.emoji, true
		}
	}
	return "", false
}

// Len reports the number of loaded rules.
func (s *Set) Len() int { return len(s.rules) }
