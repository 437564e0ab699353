/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Every emoji the detector can classify, minus 128524 (it needs closed eyes).
var defaultEmojis = []rune{
	128515, 128527, 128521, 128535, 128539, 128540,
	128542, 128545, 128563, 128561, 128528, 9786,
}

const (
	whiteSmiley  rune = 9786   // ☺
	slightSmiley rune = 128578 // 🙂

	variationSelector = "\uFE0F"
)

// EmojiSet is the ordered, immutable list of target codepoints.
type EmojiSet struct {
	codes []rune
}

func NewEmojiSet(codes []rune) (EmojiSet, error) {
	if len(codes) == 0 {
		return EmojiSet{}, ErrEmptyEmojiSet
	}

	seen := make(map[rune]bool, len(codes))
	for _, c := range codes {
		if c <= 0 || !utf8.ValidRune(c) {
			return EmojiSet{}, fmt.Errorf("%w: %U", ErrInvalidEmoji, c)
		}
		if seen[c] {
			return EmojiSet{}, fmt.Errorf("%w: duplicate %U", ErrInvalidEmoji, c)
		}
		seen[c] = true
	}

	return EmojiSet{codes: slices.Clone(codes)}, nil
}

func (s EmojiSet) Len() int { return len(s.codes) }

func (s EmojiSet) At(i int) rune { return s.codes[i] }

func (s EmojiSet) Codes() []rune { return slices.Clone(s.codes) }

// displayCode returns the codepoint drawn on screen for target c.
// The detector reports ☺, which renders poorly next to the others.
func displayCode(c rune) rune {
	if c == whiteSmiley {
		return slightSmiley
	}
	return c
}

// firstRune extracts the codepoint of a dominant emoji string as reported
// by the detector, or 0 if s is empty.
func firstRune(s string) rune {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError {
		return 0
	}
	return r
}

// parseEmoji accepts a decimal codepoint ("128515"), a U+ notation
// ("U+1F603") or the literal emoji ("😃").
func parseEmoji(s string) (rune, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty entry", ErrInvalidEmoji)
	}

	if hex, ok := strings.CutPrefix(strings.ToUpper(s), "U+"); ok {
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidEmoji, s)
		}
		return rune(n), nil
	}

	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return rune(n), nil
	}

	s = strings.TrimSuffix(s, variationSelector)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("%w: %q is not a single emoji", ErrInvalidEmoji, s)
	}

	return r, nil
}

func parseEmojiSet(entries []string) (EmojiSet, error) {
	codes := make([]rune, 0, len(entries))
	for _, e := range entries {
		c, err := parseEmoji(e)
		if err != nil {
			return EmojiSet{}, err
		}
		codes = append(codes, c)
	}

	return NewEmojiSet(codes)
}

func defaultEmojiEntries() []string {
	entries := make([]string, len(defaultEmojis))
	for i, c := range defaultEmojis {
		entries[i] = strconv.Itoa(int(c))
	}
	return entries
}
