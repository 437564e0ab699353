/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"testing"
)

func TestScoreTrackerAccuracy(t *testing.T) {
	var s ScoreTracker

	if _, err := s.Accuracy(); !errors.Is(err, ErrDivisionUndefined) {
		t.Fatalf("Accuracy() with no attempts: err = %v, want ErrDivisionUndefined", err)
	}

	for _, r := range []Result{Success, Success, Fail, Success} {
		s.RecordAttempt(r)
		if s.Score() > s.Attempts() {
			t.Fatalf("score %d exceeds attempts %d", s.Score(), s.Attempts())
		}
	}

	acc, err := s.Accuracy()
	if err != nil {
		t.Fatal(err)
	}
	if acc != 75 {
		t.Fatalf("accuracy = %d, want 75", acc)
	}

	s.Reset()
	if s.Score() != 0 || s.Attempts() != 0 {
		t.Fatalf("after Reset: %d/%d", s.Score(), s.Attempts())
	}
}

func TestAccuracyRounds(t *testing.T) {
	tests := []struct {
		score, attempts, want int
	}{
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{0, 5, 0},
		{7, 7, 100},
	}

	for _, tt := range tests {
		s := ScoreTracker{score: tt.score, attempts: tt.attempts}
		got, err := s.Accuracy()
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("%d/%d: accuracy = %d, want %d", tt.score, tt.attempts, got, tt.want)
		}
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		accuracy int
		want     string
	}{
		{100, "Perfect"},
		{99, "Amazing"},
		{80, "Amazing"},
		{79, "Great job"},
		{50, "Great job"},
		{49, "Good job"},
		{30, "Good job"},
		{29, "More practice"},
		{10, "More practice"},
		{9, "Ouch"},
		{0, "Ouch"},
	}

	for _, tt := range tests {
		if got := tierFor(tt.accuracy).Name; got != tt.want {
			t.Errorf("tierFor(%d) = %q, want %q", tt.accuracy, got, tt.want)
		}
	}
}

func TestSummary(t *testing.T) {
	t.Run("half right", func(t *testing.T) {
		s := ScoreTracker{score: 5, attempts: 10}
		got := s.Summary()
		if got.Accuracy != 50 || got.Tier.Name != "Great job" {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("no attempts", func(t *testing.T) {
		var s ScoreTracker
		got := s.Summary()
		if got.Accuracy != 0 || got.Tier.Name != "Ouch" || got.Tier.Emoji != 129318 {
			t.Fatalf("got %+v", got)
		}
	})
}
