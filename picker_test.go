/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import "testing"

func TestPickerNeverRepeats(t *testing.T) {
	const n = 12

	for draw := range n {
		p := NewPicker(n, func(int) int { return draw })
		for exclude := range n {
			got := p.Pick(exclude)
			if got == exclude {
				t.Fatalf("draw %d: Pick(%d) repeated", draw, exclude)
			}
			if got < 0 || got >= n {
				t.Fatalf("draw %d: Pick(%d) = %d out of range", draw, exclude, got)
			}
		}
	}
}

func TestPickerWraps(t *testing.T) {
	p := NewPicker(12, func(int) int { return 11 })
	if got := p.Pick(11); got != 0 {
		t.Fatalf("Pick(11) = %d, want 0", got)
	}

	p = NewPicker(12, func(int) int { return 4 })
	if got := p.Pick(4); got != 5 {
		t.Fatalf("Pick(4) = %d, want 5", got)
	}
	if got := p.Pick(noTarget); got != 4 {
		t.Fatalf("Pick(none) = %d, want 4", got)
	}
}

func TestPickerDefaultRandom(t *testing.T) {
	p := NewPicker(12, nil)

	prev := noTarget
	for range 1000 {
		got := p.Pick(prev)
		if got == prev {
			t.Fatalf("Pick(%d) repeated", prev)
		}
		prev = got
	}
}

func TestPickerSingleEmoji(t *testing.T) {
	p := NewPicker(1, func(int) int { return 0 })

	if got := p.Pick(noTarget); got != 0 {
		t.Fatalf("Pick(none) = %d, want 0", got)
	}
	if got := p.Pick(0); got != 0 {
		t.Fatalf("Pick(0) = %d, want 0 with a single emoji", got)
	}
}
