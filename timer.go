/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import "time"

// Clock schedules f to run once after d. The returned func cancels it and
// reports whether the call was still pending.
type Clock interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type timerKind int

const (
	roundTimer timerKind = iota
	gameTimer
	leadInTimer
	timerKinds
)

func (k timerKind) String() string {
	switch k {
	case roundTimer:
		return "round"
	case gameTimer:
		return "game"
	case leadInTimer:
		return "lead-in"
	}
	return "unknown"
}

type timerSlot struct {
	gen   uint64
	armed bool
	stop  func() bool
}

// RoundTimer holds the countdowns of one session: the per-round deadline,
// the whole-game deadline and the one-shot lead-in before the first round.
//
// Arm, Cancel and CancelAll must only be called from the session's event
// goroutine. Expiries are handed to dispatch, which has to run them on that
// same goroutine. Every arm or cancel bumps the slot generation, and a
// firing carrying an old generation is dropped, so a timer that already
// fired in the runtime but is still queued can never run after being
// canceled or replaced.
type RoundTimer struct {
	clock    Clock
	dispatch func(func())
	slots    [timerKinds]timerSlot

	// onStale is told about dropped firings.
	onStale func(timerKind)
}

func NewRoundTimer(clock Clock, dispatch func(func())) *RoundTimer {
	if clock == nil {
		clock = realClock{}
	}
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	return &RoundTimer{clock: clock, dispatch: dispatch}
}

// Arm replaces any pending timer of the same kind with one that runs
// callback after d.
func (t *RoundTimer) Arm(kind timerKind, d time.Duration, callback func()) {
	t.Cancel(kind)

	slot := &t.slots[kind]
	slot.gen++
	slot.armed = true

	gen := slot.gen
	slot.stop = t.clock.AfterFunc(d, func() {
		t.dispatch(func() { t.fire(kind, gen, callback) })
	})
}

func (t *RoundTimer) fire(kind timerKind, gen uint64, callback func()) {
	slot := &t.slots[kind]
	if !slot.armed || slot.gen != gen {
		if t.onStale != nil {
			t.onStale(kind)
		}
		return
	}

	slot.armed = false
	slot.stop = nil

	callback()
}

// Cancel is a no-op when nothing of that kind is pending.
func (t *RoundTimer) Cancel(kind timerKind) {
	slot := &t.slots[kind]
	if !slot.armed {
		return
	}

	slot.armed = false
	slot.gen++
	if slot.stop != nil {
		slot.stop()
		slot.stop = nil
	}
}

func (t *RoundTimer) CancelAll() {
	for k := range timerKinds {
		t.Cancel(k)
	}
}

func (t *RoundTimer) Pending(kind timerKind) bool {
	return t.slots[kind].armed
}
