package livefeed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/huntkit/livefeed-sdk-go/livefeed/submit"
)

// Submitter sends one answer to the server.
type Submitter interface {
	Submit(ctx context.Context, answer string) (*submit.Response, error)
}

// Guesser is the answer form: it holds the answer field, gates the submit control
// and reports the outcome of each submission through a Notifier.
type Guesser struct {
	submitter Submitter
	gate      *Gate
	notifier  Notifier
	logger    Logger
	focus     func()

	mu     sync.Mutex
	answer string
}

// NewGuesser builds a form around submitter and gate.
func NewGuesser(submitter Submitter, gate *Gate, notifier Notifier) *Guesser {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Guesser{
		submitter: submitter,
		gate:      gate,
		notifier:  notifier,
		logger:    noopLogger{},
		focus:     func() {},
	}
}

// SetLogger overrides logger (optional).
func (g *Guesser) SetLogger(l Logger) {
	if l != nil {
		g.logger = l
	}
}

// OnFocus registers the hook run when an empty answer is submitted.
func (g *Guesser) OnFocus(fn func()) {
	if fn != nil {
		g.focus = fn
	}
}

// Gate returns the submit gate.
func (g *Guesser) Gate() *Gate { return g.gate }

// SetAnswer updates the answer field.
func (g *Guesser) SetAnswer(text string) {
	g.mu.Lock()
	g.answer = text
	g.mu.Unlock()
	g.gate.SetAnswerEmpty(text == "")
}

// Answer returns the current answer field.
func (g *Guesser) Answer() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.answer
}

// Submit sends the current answer. An empty answer, or any answer while the
// cooldown runs, is refused locally without a request. A failed request rolls
// back the cooldown flag.
func (g *Guesser) Submit(ctx context.Context) (*submit.Response, error) {
	answer := g.Answer()
	if answer == "" {
		g.focus()
		return nil, NewError(ErrorEmptyAnswer, "empty answer")
	}
	if on, until := g.gate.OnCooldown(); on {
		g.logger.Debug("guess held during cooldown", map[string]any{"until": until})
		return nil, NewError(ErrorRateLimited, "cooldown active")
	}

	resp, err := g.submitter.Submit(ctx, answer)
	if err != nil {
		g.gate.ClearCooldown()
		return nil, g.refused(err)
	}

	g.SetAnswer("")
	switch resp.Status {
	case submit.StatusCorrect:
		// The event stream confirms shortly after; the direct reply covers a broken stream.
		g.notifier.Notify(LevelSuccess, MsgCorrect, false)
	case submit.StatusEureka:
		g.notifier.Notify(LevelInfo, resp.Message, false)
	default:
		end, perr := ParseInstant(resp.TimeoutEnd)
		if perr != nil {
			g.logger.Warn("unparseable cooldown end", map[string]any{"timeout_end": resp.TimeoutEnd})
			end = time.Time{}
		}
		d := g.gate.Reconcile(resp.Cooldown(), end)
		g.logger.Debug("cooldown started", map[string]any{"duration_ms": d.Milliseconds()})
	}
	return resp, nil
}

func (g *Guesser) refused(err error) error {
	switch {
	case submit.IsTooFast(err):
		g.notifier.Notify(LevelDanger, MsgTooFast, false)
		return WrapError(ErrorRateLimited, "guess refused", err)
	case submit.IsAlreadyAnswered(err):
		g.notifier.Notify(LevelDanger, MsgAlreadyAnswered, false)
		return WrapError(ErrorAlreadyAnswered, "guess refused", err)
	default:
		g.notifier.Notify(LevelDanger, strings.TrimSpace(MsgSubmitFailed+" "+err.Error()), false)
		g.logger.Warn("submission failed", map[string]any{"error": err.Error()})
		return WrapError(ErrorSubmission, "submit answer", err)
	}
}

// NewPageGuesser wires a Guesser to the answer endpoint of cfg.PageURL.
func NewPageGuesser(cfg Config, gate *Gate, notifier Notifier) *Guesser {
	sc := submit.NewClient(cfg.PageURL)
	sc.SetCSRFToken(cfg.CSRFToken)
	sc.SetSessionCookie(cfg.SessionCookie)
	if cfg.SubmitTimeout > 0 {
		sc.SetHTTPClientTimeout(cfg.SubmitTimeout)
	}
	return NewGuesser(sc, gate, notifier)
}
