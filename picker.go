/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import "math/rand/v2"

// Picker draws target indexes so the same emoji is never asked for twice in a row.
type Picker struct {
	n    int
	intn func(int) int
}

// NewPicker returns a Picker over [0, n). A nil intn uses math/rand/v2.
func NewPicker(n int, intn func(int) int) *Picker {
	if intn == nil {
		intn = rand.IntN
	}
	return &Picker{n: n, intn: intn}
}

// Pick returns a uniformly drawn index; a draw equal to exclude moves
// to the following index, wrapping to 0.
func (p *Picker) Pick(exclude int) int {
	i := p.intn(p.n)
	if i == exclude {
		i = (i + 1) % p.n
	}
	return i
}
