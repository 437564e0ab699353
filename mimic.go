// Mimic Me
//
// A target emoji is shown and the player has to make that face at their
// camera before the round runs out. Face detection runs in the browser; the
// page forwards the detector's dominant emoji for every frame over a
// websocket and the server runs the rounds, timers and scoring.
//
// Features:
// - WebSockets per game ID: /mimic/:gameid and /mimic/:gameid/ws
// - One round engine per game, driven by a single hub goroutine
// - Timer expiries and client messages share the hub's event loop
// - First connection becomes the player; only the player's tabs run the
//   detector and drive the game
// - Every other tab on the same game ID watches the same target, score and summary
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type      string  `json:"type"`                // "ready", "frame", "stopped", "webcam", "start", "stop", "reset"
	Emoji     string  `json:"emoji,omitempty"`     // frame: dominant emoji as text
	Codepoint int     `json:"codepoint,omitempty"` // frame: dominant emoji as codepoint
	Timestamp float64 `json:"timestamp,omitempty"` // frame
	Allowed   *bool   `json:"allowed,omitempty"`   // webcam
}

// TargetMessage carries the emoji to mimic. Display differs from Codepoint
// only for emojis that are drawn with a substitute.
type TargetMessage struct {
	Type      string `json:"type"` // "target"
	Codepoint int    `json:"codepoint"`
	Display   int    `json:"display"`
}

type ScoreMessage struct {
	Type     string `json:"type"` // "score"
	Score    int    `json:"score"`
	Attempts int    `json:"attempts"`
}

type FeedbackMessage struct {
	Type string `json:"type"` // "feedback"
	Kind string `json:"kind"` // "success", "fail" or "go"
}

type SummaryMessage struct {
	Type     string `json:"type"` // "summary"
	Score    int    `json:"score"`
	Attempts int    `json:"attempts"`
	Accuracy int    `json:"accuracy"`
	Tier     string `json:"tier"`
	Message  string `json:"message"`
	Emoji    int    `json:"emoji"`
}

type LogMessage struct {
	Type       string `json:"type"` // "log"
	Message    string `json:"message"`
	Persistent bool   `json:"persistent"`
}

// DetectorMessage tells the page to start, stop or reset its face detector.
type DetectorMessage struct {
	Type   string `json:"type"`   // "detector"
	Action string `json:"action"` // "start", "stop" or "reset"
}

// SimpleMessage is for notifications without a payload ("clear_results", "reset_view").
type SimpleMessage struct {
	Type string `json:"type"`
}

// SessionConfig is what the page needs to run the detector and draw timers.
type SessionConfig struct {
	RoundMillis    int64  `json:"round_ms"`
	GameMillis     int64  `json:"game_ms"`
	LeadInMillis   int64  `json:"lead_in_ms"`
	Emojis         []int  `json:"emojis"`
	DetectorScript string `json:"detector_script"`
}

// SessionInfoMessage is sent immediately on connect so a late tab can catch up.
type SessionInfoMessage struct {
	Type     string        `json:"type"` // "session_info"
	GameID   string        `json:"game_id"`
	State    string        `json:"state"`
	Score    int           `json:"score"`
	Attempts int           `json:"attempts"`
	IsPlayer bool          `json:"is_player"` // true if this cookie drives the game
	Config   SessionConfig `json:"config"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type clientEvent struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id      string
	clients map[*Client]bool
	machine *Machine
	info    SessionConfig
	log     zerolog.Logger

	playerID string // cookie of the player; every other client only watches

	register chan *Client
	unreg    chan *Client
	events   chan clientEvent
	calls    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	createdAt  time.Time
	lastActive time.Time
}

func newHub(cfg *Config, gameID string, clock Clock) (*Hub, error) {
	now := time.Now()

	h := &Hub{
		id:         gameID,
		clients:    make(map[*Client]bool),
		log:        log.With().Str("game", gameID).Logger(),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		events:     make(chan clientEvent),
		calls:      make(chan func()),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}

	timings := cfg.timings()

	m, err := NewMachine(MachineConfig{
		Emojis:   cfg.emojiSet,
		Timings:  timings,
		Clock:    clock,
		Dispatch: h.post,
		View:     h,
		Detector: h,
		Logger:   h.log,
	})
	if err != nil {
		return nil, err
	}
	h.machine = m

	emojis := make([]int, cfg.emojiSet.Len())
	for i, c := range cfg.emojiSet.Codes() {
		emojis[i] = int(displayCode(c))
	}
	h.info = SessionConfig{
		RoundMillis:    timings.Round.Milliseconds(),
		GameMillis:     timings.Game.Milliseconds(),
		LeadInMillis:   timings.LeadIn.Milliseconds(),
		Emojis:         emojis,
		DetectorScript: cfg.detectorScript,
	}

	return h, nil
}

// post hands f to the event loop. It gives up once the hub has stopped.
func (h *Hub) post(f func()) {
	select {
	case h.calls <- f:
	case <-h.quit:
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.touch()

			// First connection becomes the player
			if h.playerID == "" {
				h.playerID = c.playerID
			}

			h.clients[c] = true

			snap := h.machine.Snapshot()
			h.sendTo(c, SessionInfoMessage{
				Type:     "session_info",
				GameID:   h.id,
				State:    snap.State.String(),
				Score:    snap.Score,
				Attempts: snap.Attempts,
				IsPlayer: h.isPlayer(c),
				Config:   h.info,
			})
			if snap.Target != 0 {
				h.sendTo(c, targetMessage(snap.Target))
			}

			h.log.Debug().Str("player", c.playerID).Int("clients", len(h.clients)).Msg("client joined")

		case c := <-h.unreg:
			h.touch()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case ev := <-h.events:
			h.touch()
			h.handle(ev)

		case f := <-h.calls:
			f()

		case <-h.quit:
			h.machine.Shutdown()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		}
	}
}

func (h *Hub) isPlayer(c *Client) bool {
	return c.playerID != "" && c.playerID == h.playerID
}

func (h *Hub) handle(ev clientEvent) {
	m := h.machine
	msg := ev.msg

	if !h.isPlayer(ev.client) {
		h.log.Debug().Str("type", msg.Type).Str("player", ev.client.playerID).Msg("ignored message from watcher")
		return
	}

	switch msg.Type {
	case "ready":
		m.OnReady()
	case "frame":
		code, ok := frameCode(msg)
		if !ok {
			h.log.Debug().Int("codepoint", msg.Codepoint).Msg("ignored frame with invalid codepoint")
			return
		}
		m.OnFrameResult(code, msg.Timestamp)
	case "stopped":
		m.OnStopped()
	case "webcam":
		m.OnWebcam(msg.Allowed != nil && *msg.Allowed)
	case "start":
		m.Launch()
	case "stop":
		m.Stop()
	case "reset":
		m.Reset()
	default:
		h.log.Debug().Str("type", msg.Type).Msg("ignored unknown message")
	}
}

// frameCode returns the dominant emoji of a frame. The numeric codepoint
// wins over the text; anything that is not a valid rune is rejected.
func frameCode(msg ClientMessage) (rune, bool) {
	if msg.Codepoint == 0 {
		return firstRune(msg.Emoji), true
	}
	if msg.Codepoint < 0 || msg.Codepoint > utf8.MaxRune || !utf8.ValidRune(rune(msg.Codepoint)) {
		return 0, false
	}
	return rune(msg.Codepoint), true
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

// close stops the event loop and disconnects every client (used by reaper).
func (h *Hub) close() {
	h.stopOnce.Do(func() { close(h.quit) })
}

func (h *Hub) sendTo(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(msg any) {
	for c := range h.clients {
		h.sendTo(c, msg)
	}
}

func targetMessage(code rune) TargetMessage {
	return TargetMessage{
		Type:      "target",
		Codepoint: int(code),
		Display:   int(displayCode(code)),
	}
}

func (h *Hub) ShowTarget(code rune) {
	h.broadcast(targetMessage(code))
}

func (h *Hub) ShowScore(score, attempts int) {
	h.broadcast(ScoreMessage{Type: "score", Score: score, Attempts: attempts})
}

func (h *Hub) ShowFeedback(kind Feedback) {
	h.broadcast(FeedbackMessage{Type: "feedback", Kind: kind.String()})
}

func (h *Hub) ShowSummary(s Summary) {
	h.broadcast(SummaryMessage{
		Type:     "summary",
		Score:    s.Score,
		Attempts: s.Attempts,
		Accuracy: s.Accuracy,
		Tier:     s.Tier.Name,
		Message:  s.Tier.Name + "!",
		Emoji:    int(s.Tier.Emoji),
	})
}

func (h *Hub) ClearResults() {
	h.broadcast(SimpleMessage{Type: "clear_results"})
}

func (h *Hub) ResetView() {
	h.broadcast(SimpleMessage{Type: "reset_view"})
}

func (h *Hub) Log(message string, persistent bool) {
	h.broadcast(LogMessage{Type: "log", Message: message, Persistent: persistent})
}

// toPlayer sends msg to the player's clients only.
func (h *Hub) toPlayer(msg any) {
	for c := range h.clients {
		if h.isPlayer(c) {
			h.sendTo(c, msg)
		}
	}
}

func (h *Hub) StartDetector() {
	h.toPlayer(DetectorMessage{Type: "detector", Action: "start"})
}

func (h *Hub) StopDetector() {
	h.toPlayer(DetectorMessage{Type: "detector", Action: "stop"})
}

func (h *Hub) ResetDetector() {
	h.toPlayer(DetectorMessage{Type: "detector", Action: "reset"})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "mimicme_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Error().Err(err).Msg("GAMES: unable to generate player id")
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	cfg         *Config
	clock       Clock
	idleTimeout time.Duration
}

func newGameManager(ctx context.Context, cfg *Config, clock Clock) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		cfg:         cfg,
		clock:       clock,
		idleTimeout: cfg.sessionTimeout,
	}
	if gm.idleTimeout > 0 {
		go gm.reaperLoop(ctx)
	}
	return gm
}

func (gm *GameManager) getHub(gameID string) (*Hub, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub, nil
	}

	hub, err := newHub(gm.cfg, gameID, gm.clock)
	if err != nil {
		return nil, err
	}
	gm.hubs[gameID] = hub
	go hub.run()

	log.Info().Str("game", gameID).Msg("GAMES: Started session hub")

	return hub, nil
}

func (gm *GameManager) count() int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	return len(gm.hubs)
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reap removes hubs that have been idle since before cutoff.
func (gm *GameManager) reap(cutoff time.Time) int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	reaped := 0
	for id, hub := range gm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(gm.hubs, id)
			hub.close()
			reaped++

			log.Info().Str("game", id).Msg("GAMES: Reaped idle session")
		}
	}
	return reaped
}

// reaperLoop periodically removes hubs that have been idle longer than
// idleTimeout, and every hub once ctx is done.
func (gm *GameManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gm.reap(time.Now().Add(-gm.idleTimeout))
		case <-ctx.Done():
			gm.reap(time.Now().Add(time.Hour))
			return
		}
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub, err := gm.getHub(gameID)
		if err != nil {
			http.Error(w, "unable to start game", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Msg("GAMES: websocket upgrade failed")
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 32),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.quit:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.quit:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case h.events <- clientEvent{client: c, msg: msg}:
		case <-h.quit:
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func serveGamePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := assets.ReadFile("assets/mimic/index.html")
		if err != nil {
			http.Error(w, "page not found", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)
		cspGame(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(data)
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		log.Info().Msgf("GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerMimicGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerMimicGame(cfg *Config, path string, mux *httprouter.Router, gm *GameManager) {
	path = cfg.prefix + path

	mux.GET(path, redirectNewGame(path, gm))
	mux.GET(path+"/:gameid", serveGamePage(cfg))
	mux.GET(path+"/:gameid/ws", serveWSForManager(gm))
	mux.GET(path+"/:gameid/qr", qrHandler)
}
