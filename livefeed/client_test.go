package livefeed

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/huntkit/livefeed-sdk-go/internal/huntserver"
	"github.com/huntkit/livefeed-sdk-go/livefeed/submit"
)

const waitTimeout = 3 * time.Second

func TestClientResyncNotConnected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PageURL = "http://localhost:1/puzzle/p1/"
	c := NewClient(cfg)
	err := c.Resync(testCtx())
	if CodeOf(err) != ErrorNotConnected {
		t.Fatalf("expected not connected, got %v", err)
	}
}

func TestClientConnectInvalidConfig(t *testing.T) {
	c := NewClient(DefaultConfig())
	if err := c.Connect(context.Background()); CodeOf(err) != ErrorInvalidConfig {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

// scriptServer accepts one WebSocket per connection and hands it to script.
func scriptServer(t *testing.T, script func(ctx context.Context, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		script(r.Context(), conn)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func readRequests(ctx context.Context, conn *websocket.Conn, n int) ([]map[string]any, error) {
	var out []map[string]any
	for i := 0; i < n; i++ {
		var req map[string]any
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			return out, err
		}
		out = append(out, req)
	}
	return out, nil
}

// drain reads until the client goes away so close handshakes complete.
func drain(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestClientBackfillAndResyncRequests(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 4, 22, 0, 0, 0, time.UTC))
	requests := make(chan []map[string]any, 2)
	drop := make(chan struct{})

	ts := scriptServer(t, func(ctx context.Context, conn *websocket.Conn) {
		reqs, err := readRequests(ctx, conn, 3)
		if err != nil {
			return
		}
		requests <- reqs
		if reqs[0]["from"] == FromAll {
			_ = wsjson.Write(ctx, conn, map[string]any{
				"type":    "old_guess",
				"content": map[string]any{"by": "alice", "guess": "PARIS", "correct": false, "guess_uid": 1},
			})
			<-drop
			return // abrupt close
		}
		drain(ctx, conn)
	})

	cfg := DefaultConfig()
	cfg.PageURL = ts.URL + "/puzzle/p1/"
	c := NewClient(cfg)
	c.SetClock(clock)
	t.Cleanup(func() { _ = c.Close() })

	notes := &recordingNotifier{}
	c.SetNotifier(notes)
	guesses := make(chan GuessEvent, 4)
	c.OnGuess(func(ev GuessEvent) { guesses <- ev })
	states := make(chan StateEvent, 8)
	c.OnStateChanged(func(ev StateEvent) { states <- ev })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	first := waitFor(t, requests, "initial backfill")
	for i, typ := range []string{"guesses-plz", "hints-plz", "unlocks-plz"} {
		if first[i]["type"] != typ || first[i]["from"] != FromAll {
			t.Fatalf("request %d: unexpected %v", i, first[i])
		}
	}

	waitFor(t, guesses, "backfilled guess")
	marker, ok := c.LastUpdated()
	if !ok || !marker.Equal(clock.Now()) {
		t.Fatalf("marker not set from client clock: %v %v", marker, ok)
	}

	close(drop)
	for {
		ev := waitFor(t, states, "stale state")
		if ev.NewState == StateStale {
			if !IsConnectionError(ev.Error) {
				t.Fatalf("expected connection error, got %v", ev.Error)
			}
			break
		}
	}
	if n := notes.last(); !n.persistent || n.msg != MsgFeedBroken {
		t.Fatalf("expected persistent warning, got %+v", n)
	}

	clock.Advance(time.Minute)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	second := waitFor(t, requests, "resync backfill")
	wantFrom := float64(marker.UnixMilli())
	if second[0]["type"] != "guesses-plz" || second[0]["from"] != wantFrom {
		t.Fatalf("unexpected guesses request %v", second[0])
	}
	if second[1]["type"] != "hints-plz" || second[1]["from"] != wantFrom {
		t.Fatalf("unexpected hints request %v", second[1])
	}
	if _, has := second[2]["from"]; second[2]["type"] != "unlocks-plz" || has {
		t.Fatalf("unexpected unlocks request %v", second[2])
	}
}

func TestClientUnknownEventSurfaces(t *testing.T) {
	next := make(chan struct{})
	ts := scriptServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if _, err := readRequests(ctx, conn, 3); err != nil {
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"bogus","content":{}}`))
		<-next
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"new_eureka","content":{"eureka":"HALF","eureka_uid":9}}`))
		drain(ctx, conn)
	})

	cfg := DefaultConfig()
	cfg.PageURL = ts.URL + "/puzzle/p1/"
	c := NewClient(cfg)
	logs := &lockedBuffer{}
	c.SetLogger(NewZerologLogger(zerolog.New(logs)))
	t.Cleanup(func() { _ = c.Close() })

	errs := make(chan error, 4)
	c.OnError(func(err error) { errs <- err })
	eurekas := make(chan EurekaEvent, 1)
	c.OnEureka(func(ev EurekaEvent) { eurekas <- ev })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	err := waitFor(t, errs, "protocol fault")
	if CodeOf(err) != ErrorUnknownEvent {
		t.Fatalf("expected unknown event fault, got %v", err)
	}
	if _, ok := c.LastUpdated(); ok {
		t.Fatalf("marker must not advance on a rejected frame")
	}
	if !strings.Contains(logs.String(), "protocol violation") {
		t.Fatalf("fault not logged: %s", logs.String())
	}

	close(next)
	ev := waitFor(t, eurekas, "eureka after fault")
	if ev.UID != "9" {
		t.Fatalf("unexpected eureka %+v", ev)
	}
	if c.State() != StateConnected {
		t.Fatalf("protocol fault must not drop the connection, state %v", c.State())
	}
}

func TestClientAgainstHuntServer(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 4, 22, 0, 0, 0, time.UTC))
	srv := huntserver.New(huntserver.DefaultConfig(), clock)
	srv.AddPuzzle(huntserver.Puzzle{
		ID:      "p1",
		Answer:  "PARIS",
		Eurekas: []huntserver.Eureka{{Answer: "FRANCE", Feedback: "Right country!"}},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	pageURL := ts.URL + "/puzzle/p1/"

	// History that exists before the page opens.
	if _, err := srv.PublishHint("p1", "Think <capitals>"); err != nil {
		t.Fatal(err)
	}
	poster := submit.NewClient(pageURL)
	poster.SetSessionCookie("alice")
	if _, err := poster.Submit(context.Background(), "LONDON"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	cfg := DefaultConfig()
	cfg.PageURL = pageURL
	c := NewClient(cfg)
	c.SetClock(clock)
	t.Cleanup(func() { _ = c.Close() })

	guesses := make(chan GuessEvent, 8)
	c.OnGuess(func(ev GuessEvent) { guesses <- ev })
	hints := make(chan HintEvent, 8)
	c.OnHint(func(ev HintEvent) { hints <- ev })
	eurekas := make(chan EurekaEvent, 8)
	c.OnEureka(func(ev EurekaEvent) { eurekas <- ev })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if g := waitFor(t, guesses, "backfilled guess"); g.Type != KindOldGuess || g.Guess != "LONDON" || g.By != "alice" {
		t.Fatalf("unexpected guess %+v", g)
	}
	if h := waitFor(t, hints, "backfilled hint"); h.Type != KindOldHint {
		t.Fatalf("unexpected hint %+v", h)
	}

	// Live: the form submits through the same server.
	notes := &recordingNotifier{}
	form := NewPageGuesser(cfg, NewGate(clock), notes)
	form.SetAnswer("FRANCE")
	if _, err := form.Submit(context.Background()); CodeOf(err) != ErrorRateLimited {
		t.Fatalf("expected too fast inside server cooldown, got %v", err)
	}
	clock.Advance(6 * time.Second)
	resp, err := form.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Status != submit.StatusEureka {
		t.Fatalf("unexpected status %q", resp.Status)
	}
	if g := waitFor(t, guesses, "live guess"); g.Type != KindNewGuess || g.Guess != "FRANCE" {
		t.Fatalf("unexpected guess %+v", g)
	}
	if e := waitFor(t, eurekas, "live eureka"); e.Eureka != "FRANCE" {
		t.Fatalf("unexpected eureka %+v", e)
	}

	if got := len(c.Feed().Guesses()); got != 2 {
		t.Fatalf("expected 2 guesses, got %d", got)
	}
	if html := c.Feed().RenderHints(); html == "" || strings.Contains(html, "<capitals>") {
		t.Fatalf("hint not escaped: %s", html)
	}
}

func TestClientResyncAfterOutage(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 4, 22, 0, 0, 0, time.UTC))
	srv := huntserver.New(huntserver.DefaultConfig(), clock)
	srv.AddPuzzle(huntserver.Puzzle{ID: "p1", Answer: "PARIS"})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := DefaultConfig()
	cfg.PageURL = ts.URL + "/puzzle/p1/"
	c := NewClient(cfg)
	c.SetClock(clock)
	t.Cleanup(func() { _ = c.Close() })

	hints := make(chan HintEvent, 8)
	c.OnHint(func(ev HintEvent) { hints <- ev })
	stale := make(chan struct{}, 1)
	c.OnStateChanged(func(ev StateEvent) {
		if ev.NewState == StateStale {
			stale <- struct{}{}
		}
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitForConnections(t, srv, "p1", 1)
	if _, err := srv.PublishHint("p1", "first"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, hints, "live hint")

	srv.DropConnections("p1")
	waitFor(t, stale, "stale state")

	clock.Advance(time.Minute)
	if _, err := srv.PublishHint("p1", "missed"); err != nil {
		t.Fatal(err)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if h := waitFor(t, hints, "backfilled hint"); h.Hint != "missed" || h.Type != KindOldHint {
		t.Fatalf("unexpected hint %+v", h)
	}
	got := c.Feed().Hints()
	if len(got) != 2 || got[0].Text != "first" || got[1].Text != "missed" {
		t.Fatalf("unexpected hints %+v", got)
	}
}

func TestClientConcurrentFailuresReportOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PageURL = "http://localhost:1/puzzle/p1/"
	c := NewClient(cfg)
	notes := &recordingNotifier{}
	c.SetNotifier(notes)
	var errCount, staleCount atomic.Int32
	c.OnError(func(error) { errCount.Add(1) })
	c.OnStateChanged(func(ev StateEvent) {
		if ev.NewState == StateStale {
			staleCount.Add(1)
		}
	})

	// Read and write loops of one connection failing together.
	c.state = StateConnected
	c.cancel = func() {}
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			c.fail(context.Background(), NewError(ErrorConnection, "read"))
		}()
	}
	close(start)
	wg.Wait()

	if n := errCount.Load(); n != 1 {
		t.Fatalf("expected 1 error callback, got %d", n)
	}
	if n := staleCount.Load(); n != 1 {
		t.Fatalf("expected 1 stale transition, got %d", n)
	}
	notes.mu.Lock()
	defer notes.mu.Unlock()
	if len(notes.notes) != 1 || notes.notes[0].msg != MsgFeedBroken {
		t.Fatalf("expected one broken-feed warning, got %+v", notes.notes)
	}
	if c.State() != StateStale {
		t.Fatalf("expected stale, got %v", c.State())
	}
}

func waitForConnections(t *testing.T, srv *huntserver.Server, puzzleID string, n int) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for srv.Connections(puzzleID) < n {
		if time.Now().After(deadline) {
			t.Fatalf("server never saw %d connections", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// testCtx returns a cancelled context for unit tests.
func testCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
