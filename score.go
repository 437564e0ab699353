/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import "math"

// Result is the outcome of one attempt.
type Result int

const (
	Success Result = iota
	Fail
)

func (r Result) String() string {
	if r == Success {
		return "success"
	}
	return "fail"
}

// ScoreTracker counts attempts and successes. score never exceeds attempts.
type ScoreTracker struct {
	score    int
	attempts int
}

func (s *ScoreTracker) RecordAttempt(r Result) {
	s.attempts++
	if r == Success {
		s.score++
	}
}

func (s *ScoreTracker) Score() int { return s.score }

func (s *ScoreTracker) Attempts() int { return s.attempts }

// Accuracy returns round(100 * score / attempts), or ErrDivisionUndefined
// before the first attempt.
func (s *ScoreTracker) Accuracy() (int, error) {
	if s.attempts == 0 {
		return 0, ErrDivisionUndefined
	}
	return int(math.Round(100 * float64(s.score) / float64(s.attempts))), nil
}

func (s *ScoreTracker) Reset() {
	s.score = 0
	s.attempts = 0
}

// Tier is the closing message picked by accuracy band.
type Tier struct {
	Name  string
	Emoji rune
	Min   int
}

// Ordered from the highest band down; the first tier whose Min is reached wins.
var tiers = []Tier{
	{Name: "Perfect", Emoji: 127942, Min: 100},
	{Name: "Amazing", Emoji: 127881, Min: 80},
	{Name: "Great job", Emoji: 128077, Min: 50},
	{Name: "Good job", Emoji: 128077, Min: 30},
	{Name: "More practice", Emoji: 128584, Min: 10},
	{Name: "Ouch", Emoji: 129318, Min: 0},
}

func tierFor(accuracy int) Tier {
	for _, t := range tiers {
		if accuracy >= t.Min {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// Summary is the end-of-game report.
type Summary struct {
	Score    int
	Attempts int
	Accuracy int
	Tier     Tier
}

// Summary never fails: a game without attempts reports 0% in the lowest tier.
func (s *ScoreTracker) Summary() Summary {
	accuracy, err := s.Accuracy()
	if err != nil {
		accuracy = 0
	}

	return Summary{
		Score:    s.score,
		Attempts: s.attempts,
		Accuracy: accuracy,
		Tier:     tierFor(accuracy),
	}
}
