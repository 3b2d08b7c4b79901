// Package huntserver is an in-memory puzzle server speaking the live feed
// protocol. It backs the SDK integration tests and the local dev server.
package huntserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

const (
	codeTooFast         = "too fast"
	codeAlreadyAnswered = "already answered"
	codeNoAnswer        = "no answer given"

	// timeoutEndLayout matches Python's str() of an aware datetime.
	timeoutEndLayout = "2006-01-02 15:04:05.000000-07:00"
)

// ErrUnknownPuzzle is returned for operations on an unregistered puzzle.
var ErrUnknownPuzzle = errors.New("unknown puzzle")

// Config holds server settings.
type Config struct {
	Cooldown       time.Duration
	AllowedOrigins []string
	SendBuffer     int
}

// DefaultConfig returns the settings of a live hunt.
func DefaultConfig() Config {
	return Config{
		Cooldown:       5 * time.Second,
		AllowedOrigins: []string{"*"},
		SendBuffer:     256,
	}
}

// Server serves puzzle pages' event streams and answer submissions.
type Server struct {
	cfg      Config
	clock    clockwork.Clock
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	puzzles map[string]*puzzleState
	conns   map[string]map[*conn]struct{}
}

// New creates a server. A nil clock uses the real clock.
func New(cfg Config, clock clockwork.Clock) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Server{
		cfg:   cfg,
		clock: clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		puzzles: make(map[string]*puzzleState),
		conns:   make(map[string]map[*conn]struct{}),
	}
}

// AddPuzzle registers a puzzle, replacing any puzzle with the same id.
func (s *Server) AddPuzzle(p Puzzle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puzzles[p.ID] = &puzzleState{puzzle: p}
}

// PublishHint releases a hint and pushes it to every open connection.
func (s *Server) PublishHint(puzzleID, text string) (string, error) {
	p := s.puzzle(puzzleID)
	if p == nil {
		return "", ErrUnknownPuzzle
	}
	h := p.addHint(text, s.clock.Now())
	s.broadcast(puzzleID, event{Type: "new_hint", Content: hintContent(h)})
	log.Info().Str("puzzle_id", puzzleID).Str("hint_uid", h.UID).Msg("hint published")
	return h.UID, nil
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/puzzle/{id}/{$}", s.handleEvents)
	mux.HandleFunc("POST /puzzle/{id}/{$}", s.handleAnswer)

	c := cors.New(cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	})
	return c.Handler(mux)
}

// Connections returns the number of open event connections on a puzzle.
func (s *Server) Connections(puzzleID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[puzzleID])
}

// DropConnections closes every event connection on a puzzle without a close
// handshake, as a network outage would.
func (s *Server) DropConnections(puzzleID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for c := range s.conns[puzzleID] {
		_ = c.ws.Close()
		n++
	}
	if n > 0 {
		log.Info().Str("puzzle_id", puzzleID).Int("connections", n).Msg("connections dropped")
	}
	return n
}

func (s *Server) puzzle(id string) *puzzleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puzzles[id]
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	puzzleID := r.PathValue("id")
	p := s.puzzle(puzzleID)
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown puzzle"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad form"})
		return
	}
	user := userFromRequest(r)
	now := s.clock.Now()

	res := p.submit(user, r.PostFormValue("answer"), now, s.cfg.Cooldown)
	switch res.refusal {
	case codeTooFast:
		log.Info().Str("user", user).Str("puzzle_id", puzzleID).Msg("user rate-limited")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": codeTooFast})
		return
	case codeNoAnswer, codeAlreadyAnswered:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": res.refusal})
		return
	}

	s.broadcast(puzzleID, event{Type: "new_guess", Content: guessContent(res.guess)})
	if res.unlocked != nil {
		s.broadcast(puzzleID, event{Type: "new_eureka", Content: eurekaContent(*res.unlocked)})
	}

	resp := map[string]any{"by": user}
	switch res.outcome {
	case outcomeCorrect:
		resp["status"] = "correct"
	case outcomeEureka:
		resp["status"] = "eureka"
		resp["message"] = res.feedback
	default:
		resp["status"] = "wrong"
	}
	if res.outcome != outcomeCorrect {
		resp["guess"] = res.guess.Text
		resp["timeout_length"] = float64(s.cfg.Cooldown) / float64(time.Millisecond)
		resp["timeout_end"] = now.Add(s.cfg.Cooldown).Format(timeoutEndLayout)
	}
	log.Debug().Str("user", user).Str("puzzle_id", puzzleID).Interface("status", resp["status"]).Msg("guess recorded")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	puzzleID := r.PathValue("id")
	if s.puzzle(puzzleID) == nil {
		http.Error(w, "unknown puzzle", http.StatusNotFound)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("puzzle_id", puzzleID).Msg("failed to upgrade WebSocket connection")
		return
	}
	c := newConn(s, ws, puzzleID, userFromRequest(r))
	s.register(c)
	go c.writePump()
	go c.readPump()
}

func (s *Server) register(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns[c.puzzleID] == nil {
		s.conns[c.puzzleID] = make(map[*conn]struct{})
	}
	s.conns[c.puzzleID][c] = struct{}{}
	log.Debug().Str("connection_id", c.id).Str("puzzle_id", c.puzzleID).Msg("connection registered")
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conns, ok := s.conns[c.puzzleID]; ok {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			close(c.send)
			if len(conns) == 0 {
				delete(s.conns, c.puzzleID)
			}
			log.Debug().Str("connection_id", c.id).Str("puzzle_id", c.puzzleID).Msg("connection unregistered")
		}
	}
}

func (s *Server) broadcast(puzzleID string, ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("failed to marshal event")
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.conns[puzzleID] {
		c.enqueue(data)
	}
}

// handleRequest answers one client request on c.
func (s *Server) handleRequest(c *conn, req request) {
	p := s.puzzle(c.puzzleID)
	if p == nil {
		c.sendEvent(event{Type: "error", Content: map[string]string{"error": "unknown puzzle"}})
		return
	}
	from, err := req.since()
	if err != nil {
		c.sendEvent(event{Type: "error", Content: map[string]string{"error": err.Error()}})
		return
	}
	switch req.Type {
	case "guesses-plz":
		for _, g := range p.guessesSince(from) {
			c.sendEvent(event{Type: "old_guess", Content: guessContent(g)})
		}
	case "hints-plz":
		for _, h := range p.hintsSince(from) {
			c.sendEvent(event{Type: "old_hint", Content: hintContent(h)})
		}
	case "unlocks-plz":
		for _, e := range p.unlockedEurekas() {
			c.sendEvent(event{Type: "old_eureka", Content: eurekaContent(e)})
		}
	default:
		c.sendEvent(event{Type: "error", Content: map[string]string{"error": "invalid request type: " + req.Type}})
	}
}

func userFromRequest(r *http.Request) string {
	if ck, err := r.Cookie("sessionid"); err == nil && ck.Value != "" {
		return ck.Value
	}
	return "anonymous"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

// event is the server -> client envelope.
type event struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// request is the client -> server envelope.
type request struct {
	Type string          `json:"type"`
	From json.RawMessage `json:"from,omitempty"`
}

// since returns the backfill cursor; zero means everything.
func (r request) since() (time.Time, error) {
	if len(r.From) == 0 {
		return time.Time{}, nil
	}
	var s string
	if err := json.Unmarshal(r.From, &s); err == nil {
		if s == "all" {
			return time.Time{}, nil
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, errors.New("invalid from: " + s)
		}
		return time.UnixMilli(ms), nil
	}
	var ms float64
	if err := json.Unmarshal(r.From, &ms); err != nil {
		return time.Time{}, errors.New("invalid from: " + string(r.From))
	}
	return time.UnixMilli(int64(ms)), nil
}

func guessContent(g guessRecord) map[string]any {
	return map[string]any{
		"by":        g.By,
		"guess":     g.Text,
		"correct":   g.Correct,
		"guess_uid": g.UID,
	}
}

func hintContent(h hintRecord) map[string]any {
	return map[string]any{
		"hint":     h.Text,
		"time":     h.Time.Format(time.RFC3339Nano),
		"hint_uid": h.UID,
	}
}

func eurekaContent(e eurekaRecord) map[string]any {
	return map[string]any{
		"eureka":     e.Text,
		"eureka_uid": e.UID,
	}
}
