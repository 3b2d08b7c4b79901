package livefeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/huntkit/livefeed-sdk-go/livefeed/submit"
)

type fakeSubmitter struct {
	calls   []string
	resp    *submit.Response
	err     error
	onCalls func()
}

func (f *fakeSubmitter) Submit(_ context.Context, answer string) (*submit.Response, error) {
	f.calls = append(f.calls, answer)
	if f.onCalls != nil {
		f.onCalls()
	}
	return f.resp, f.err
}

type recordedNote struct {
	level      Level
	msg        string
	persistent bool
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []recordedNote
}

func (r *recordingNotifier) Notify(level Level, msg string, persistent bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, recordedNote{level, msg, persistent})
}

func (r *recordingNotifier) last() recordedNote {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return recordedNote{}
	}
	return r.notes[len(r.notes)-1]
}

func TestSubmitEmptyAnswer(t *testing.T) {
	sub := &fakeSubmitter{}
	g := NewGuesser(sub, NewGate(clockwork.NewFakeClock()), nil)
	focused := false
	g.OnFocus(func() { focused = true })

	_, err := g.Submit(context.Background())
	if CodeOf(err) != ErrorEmptyAnswer {
		t.Fatalf("expected empty answer error, got %v", err)
	}
	if len(sub.calls) != 0 {
		t.Fatalf("empty answer must not reach the network")
	}
	if !focused {
		t.Fatalf("expected focus hook")
	}
	if !g.Gate().Disabled() {
		t.Fatalf("submit must stay disabled for empty answer")
	}
}

func TestSubmitCorrect(t *testing.T) {
	sub := &fakeSubmitter{resp: &submit.Response{Status: submit.StatusCorrect}}
	notes := &recordingNotifier{}
	g := NewGuesser(sub, NewGate(clockwork.NewFakeClock()), notes)
	g.SetAnswer("PARIS")

	if _, err := g.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sub.calls) != 1 || sub.calls[0] != "PARIS" {
		t.Fatalf("unexpected calls %v", sub.calls)
	}
	if n := notes.last(); n.level != LevelSuccess || n.msg != MsgCorrect {
		t.Fatalf("unexpected note %+v", n)
	}
	if g.Answer() != "" {
		t.Fatalf("answer field must be cleared")
	}
	if on, _ := g.Gate().OnCooldown(); on {
		t.Fatalf("correct answer must not start a cooldown")
	}
}

func TestSubmitEureka(t *testing.T) {
	sub := &fakeSubmitter{resp: &submit.Response{Status: submit.StatusEureka, Message: "Keep going!"}}
	notes := &recordingNotifier{}
	g := NewGuesser(sub, NewGate(clockwork.NewFakeClock()), notes)
	g.SetAnswer("HALF")

	if _, err := g.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := notes.last(); n.level != LevelInfo || n.msg != "Keep going!" {
		t.Fatalf("unexpected note %+v", n)
	}
}

func TestSubmitWrongStartsCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	end := clock.Now().Add(5 * time.Second).UTC().Format("2006-01-02 15:04:05.000000-07:00")
	sub := &fakeSubmitter{resp: &submit.Response{Status: submit.StatusWrong, TimeoutLength: 5000, TimeoutEnd: end}}
	g := NewGuesser(sub, NewGate(clock), nil)
	g.SetAnswer("LONDON")

	if _, err := g.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	on, until := g.Gate().OnCooldown()
	if !on {
		t.Fatalf("expected cooldown")
	}
	if d := until.Sub(clock.Now()); d < 4950*time.Millisecond || d > 5050*time.Millisecond {
		t.Fatalf("expected ~5s cooldown, got %v", d)
	}

	g.SetAnswer("ROME")
	if !g.Gate().Disabled() {
		t.Fatalf("cooldown must disable submit with a non-empty answer")
	}
}

func TestSubmitDuringCooldownStaysLocal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gate := NewGate(clock)
	gate.StartCooldown(5 * time.Second)
	sub := &fakeSubmitter{err: &submit.APIError{StatusCode: 429, Code: submit.CodeTooFast}}
	notes := &recordingNotifier{}
	g := NewGuesser(sub, gate, notes)
	g.SetAnswer("ROME")

	_, err := g.Submit(context.Background())
	if CodeOf(err) != ErrorRateLimited {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if len(sub.calls) != 0 {
		t.Fatalf("guess sent during cooldown: %v", sub.calls)
	}
	if on, _ := gate.OnCooldown(); !on {
		t.Fatalf("running cooldown was cleared")
	}
	if !gate.Disabled() {
		t.Fatalf("submit must stay disabled during cooldown")
	}
	if g.Answer() != "ROME" {
		t.Fatalf("answer must be kept")
	}
}

func TestSubmitRefusals(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code ErrorCode
		msg  string
	}{
		{"too fast", &submit.APIError{StatusCode: 429, Code: submit.CodeTooFast}, ErrorRateLimited, MsgTooFast},
		{"already answered", &submit.APIError{StatusCode: 400, Code: submit.CodeAlreadyAnswered}, ErrorAlreadyAnswered, MsgAlreadyAnswered},
		{"transport", errors.New("connection refused"), ErrorSubmission, MsgSubmitFailed + " connection refused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate := NewGate(clockwork.NewFakeClock())
			sub := &fakeSubmitter{err: tc.err}
			// A cooldown set while the request was in flight must be rolled back.
			sub.onCalls = func() { gate.StartCooldown(time.Minute) }
			notes := &recordingNotifier{}
			g := NewGuesser(sub, gate, notes)
			g.SetAnswer("PARIS")

			_, err := g.Submit(context.Background())
			if CodeOf(err) != tc.code {
				t.Fatalf("expected %v, got %v", tc.code, err)
			}
			if !IsSubmissionError(err) {
				t.Fatalf("expected submission error")
			}
			if n := notes.last(); n.level != LevelDanger || n.msg != tc.msg {
				t.Fatalf("unexpected note %+v", n)
			}
			if gate.Disabled() {
				t.Fatalf("submit left disabled after failure")
			}
			if g.Answer() != "PARIS" {
				t.Fatalf("answer must be kept for re-submission")
			}
		})
	}
}
