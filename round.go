/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// State is where a Machine is in the game lifecycle.
type State int

const (
	StateIdle State = iota
	StateRoundActive
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRoundActive:
		return "round_active"
	case StateComplete:
		return "complete"
	}
	return "unknown"
}

// Feedback is the flash shown to the player.
type Feedback int

const (
	FeedbackSuccess Feedback = iota
	FeedbackFail
	FeedbackGo
)

func (f Feedback) String() string {
	switch f {
	case FeedbackSuccess:
		return "success"
	case FeedbackFail:
		return "fail"
	case FeedbackGo:
		return "go"
	}
	return "unknown"
}

func feedbackFor(r Result) Feedback {
	if r == Success {
		return FeedbackSuccess
	}
	return FeedbackFail
}

// Presenter receives the display commands produced by a Machine.
type Presenter interface {
	ShowTarget(code rune)
	ShowScore(score, attempts int)
	ShowFeedback(kind Feedback)
	ShowSummary(summary Summary)
	ClearResults()
	ResetView()
	Log(message string, persistent bool)
}

// DetectorControl drives the face detector running next to the camera.
type DetectorControl interface {
	StartDetector()
	StopDetector()
	ResetDetector()
}

type noDetector struct{}

func (noDetector) StartDetector() {}
func (noDetector) StopDetector()  {}
func (noDetector) ResetDetector() {}

// Timings are the durations that drive a session.
type Timings struct {
	Round  time.Duration
	Game   time.Duration
	LeadIn time.Duration
}

func defaultTimings() Timings {
	return Timings{
		Round:  8 * time.Second,
		Game:   16 * time.Second,
		LeadIn: 2 * time.Second,
	}
}

func (t Timings) validate() error {
	switch {
	case t.Round <= 0:
		return fmt.Errorf("round timeout: %w", ErrInvalidDuration)
	case t.Game <= 0:
		return fmt.Errorf("game duration: %w", ErrInvalidDuration)
	case t.LeadIn <= 0:
		return fmt.Errorf("lead-in: %w", ErrInvalidDuration)
	}
	return nil
}

type MachineConfig struct {
	Emojis   EmojiSet
	Timings  Timings
	Clock    Clock
	Dispatch func(func())
	Intn     func(int) int
	View     Presenter
	Detector DetectorControl
	Logger   zerolog.Logger
}

const noTarget = -1

// Machine is the round engine of one game session. It is not safe for
// concurrent use: every handler, including timer expiries delivered through
// MachineConfig.Dispatch, has to run on a single event goroutine.
type Machine struct {
	emojis   EmojiSet
	timings  Timings
	picker   *Picker
	timer    *RoundTimer
	score    ScoreTracker
	view     Presenter
	detector DetectorControl
	base     zerolog.Logger
	log      zerolog.Logger

	state     State
	current   int
	roundLive bool
	detecting bool
	session   int
}

func NewMachine(c MachineConfig) (*Machine, error) {
	if c.Emojis.Len() == 0 {
		return nil, ErrEmptyEmojiSet
	}
	if err := c.Timings.validate(); err != nil {
		return nil, err
	}
	if c.Detector == nil {
		c.Detector = noDetector{}
	}

	m := &Machine{
		emojis:   c.Emojis,
		timings:  c.Timings,
		picker:   NewPicker(c.Emojis.Len(), c.Intn),
		timer:    NewRoundTimer(c.Clock, c.Dispatch),
		view:     c.View,
		detector: c.Detector,
		base:     c.Logger,
		log:      c.Logger,
		current:  noTarget,
	}
	m.timer.onStale = func(k timerKind) {
		m.log.Debug().Stringer("timer", k).Msg("dropped stale expiry")
	}

	return m, nil
}

// OnReady is called once the detector has initialised; it starts a session.
func (m *Machine) OnReady() {
	m.detecting = true
	m.log.Debug().Msg("detector reports initialized")
	m.Start()
}

// Start begins a new session: the game timer is armed right away and the
// first target appears once the lead-in has elapsed.
func (m *Machine) Start() {
	m.halt()

	m.session++
	m.log = m.base.With().Int("session", m.session).Logger()
	m.state = StateRoundActive

	m.timer.Arm(gameTimer, m.timings.Game, m.OnGameTimeout)
	m.timer.Arm(leadInTimer, m.timings.LeadIn, m.beginRound)

	m.view.Log("GAME STARTED", false)
	m.view.ShowFeedback(FeedbackGo)

	m.log.Info().Dur("game", m.timings.Game).Dur("round", m.timings.Round).Msg("session started")
}

func (m *Machine) beginRound() {
	if m.state != StateRoundActive {
		return
	}

	m.current = m.picker.Pick(m.current)
	m.roundLive = true

	m.view.ShowTarget(m.emojis.At(m.current))
	m.timer.Arm(roundTimer, m.timings.Round, m.OnRoundTimeout)
}

// OnFrameResult checks one detector frame against the active target.
// Frames that do not match change nothing.
func (m *Machine) OnFrameResult(code rune, timestamp float64) {
	if m.state != StateRoundActive || !m.roundLive {
		if m.state != StateRoundActive {
			m.log.Debug().Float64("timestamp", timestamp).Stringer("state", m.state).Msg("ignored frame outside session")
		}
		return
	}

	if code != m.emojis.At(m.current) {
		return
	}

	m.roundLive = false
	m.recordAttempt(Success)
}

// OnRoundTimeout counts the running round as failed.
func (m *Machine) OnRoundTimeout() {
	if m.state != StateRoundActive || !m.roundLive {
		return
	}

	m.roundLive = false
	m.recordAttempt(Fail)
}

func (m *Machine) recordAttempt(r Result) {
	m.score.RecordAttempt(r)

	m.view.ShowFeedback(feedbackFor(r))
	m.view.ShowScore(m.score.Score(), m.score.Attempts())

	m.beginRound()
}

// OnGameTimeout ends the session and reports the summary exactly once.
func (m *Machine) OnGameTimeout() {
	if m.state != StateRoundActive {
		return
	}

	m.timer.CancelAll()
	m.state = StateComplete
	m.roundLive = false
	m.current = noTarget
	m.stopDetector()

	summary := m.score.Summary()
	m.view.ShowSummary(summary)

	m.view.Log("YOUR STATS", false)
	m.view.Log(" ", true)
	m.view.Log(fmt.Sprintf("Rounds: %d", summary.Attempts), true)
	m.view.Log(fmt.Sprintf("Points: %d", summary.Score), true)
	m.view.Log(fmt.Sprintf("%d%% accuracy", summary.Accuracy), true)

	m.log.Info().
		Int("score", summary.Score).
		Int("attempts", summary.Attempts).
		Int("accuracy", summary.Accuracy).
		Str("tier", summary.Tier.Name).
		Msg("session complete")
}

// Launch is the start button: it asks the detector to start when it is not
// already running. The session itself begins with OnReady.
func (m *Machine) Launch() {
	if !m.detecting {
		m.halt()
		m.resetView()
		m.detecting = true
		m.detector.StartDetector()
	}

	m.view.Log("STARTING...", false)
}

// Stop detaches the detector and returns to idle.
func (m *Machine) Stop() {
	m.stopDetector()
	m.halt()

	m.view.Log("GAME STOPPED", false)
}

// Reset clears everything and immediately starts a new session.
func (m *Machine) Reset() {
	if m.detecting {
		m.detector.ResetDetector()
	}
	m.halt()
	m.resetView()

	m.view.Log("GAME RESET", false)

	m.Start()
}

// OnStopped is called when the detector reports it has stopped. Only the
// per-frame detector output is cleared; a finished game's summary stays up.
func (m *Machine) OnStopped() {
	m.detecting = false
	m.log.Debug().Msg("detector reports stopped")
	m.view.ClearResults()
}

// OnWebcam reports whether camera access was granted.
func (m *Machine) OnWebcam(allowed bool) {
	if allowed {
		m.log.Debug().Msg("webcam access allowed")
		return
	}

	m.log.Warn().Msg("webcam access denied")
	m.view.Log("WEBCAM ACCESS DENIED", false)
}

// Shutdown cancels every timer without emitting display commands.
func (m *Machine) Shutdown() {
	m.halt()
}

func (m *Machine) halt() {
	m.timer.CancelAll()
	m.state = StateIdle
	m.roundLive = false
	m.current = noTarget
	m.score.Reset()
}

func (m *Machine) stopDetector() {
	if !m.detecting {
		return
	}
	m.detecting = false
	m.detector.StopDetector()
}

func (m *Machine) resetView() {
	m.view.ShowScore(0, 0)
	m.view.ResetView()
}

// Snapshot is the state a newly connected viewer needs to catch up.
type Snapshot struct {
	State    State
	Target   rune
	Score    int
	Attempts int
}

func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		State:    m.state,
		Score:    m.score.Score(),
		Attempts: m.score.Attempts(),
	}
	if m.current != noTarget {
		s.Target = m.emojis.At(m.current)
	}
	return s
}

func (m *Machine) State() State { return m.state }
