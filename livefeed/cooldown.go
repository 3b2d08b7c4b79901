package livefeed

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MaxClockSkew is the largest disagreement between the nominal cooldown length and
// the server-declared remaining time that is still attributed to latency.
const MaxClockSkew = time.Second

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// ParseInstant parses a server timestamp: RFC 3339, Python str(datetime) output,
// or unix milliseconds.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return time.UnixMilli(int64(ms)), nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ReconcileCooldown returns how long submission stays disabled. The server's end
// instant is trusted when it agrees with the nominal length to within MaxClockSkew;
// otherwise the clocks are unreliable and the full nominal length applies from now.
func ReconcileCooldown(length time.Duration, end, now time.Time) time.Duration {
	remaining := end.Sub(now)
	discrepancy := length - remaining
	if remaining < 0 || discrepancy > MaxClockSkew || discrepancy < -MaxClockSkew {
		return length
	}
	return remaining
}

// Gate tracks whether the submit control is enabled. Submission is disabled while
// a cooldown is running or while the answer field is empty.
type Gate struct {
	clock clockwork.Clock

	mu          sync.Mutex
	cooldown    bool
	emptyAnswer bool
	until       time.Time
	timer       clockwork.Timer
	generation  uint64
	onChange    func(disabled bool)
}

// NewGate returns a gate for an empty answer field.
func NewGate(clock clockwork.Clock) *Gate {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Gate{clock: clock, emptyAnswer: true}
}

// OnChange registers a callback invoked with the new disabled state after each
// evaluation.
func (g *Gate) OnChange(fn func(disabled bool)) {
	g.mu.Lock()
	g.onChange = fn
	g.mu.Unlock()
}

// Disabled reports whether submission is currently blocked.
func (g *Gate) Disabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldown || g.emptyAnswer
}

// OnCooldown reports the cooldown flag and when it ends.
func (g *Gate) OnCooldown() (bool, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldown, g.until
}

// SetAnswerEmpty records whether the answer field is empty.
func (g *Gate) SetAnswerEmpty(empty bool) {
	g.mu.Lock()
	g.emptyAnswer = empty
	g.evaluateLocked()
}

// StartCooldown disables submission for d. Any outstanding cooldown timer is
// cancelled first so its expiry cannot clear the new window.
func (g *Gate) StartCooldown(d time.Duration) {
	g.mu.Lock()
	g.stopLocked()
	g.generation++
	gen := g.generation
	g.cooldown = true
	g.until = g.clock.Now().Add(d)
	g.timer = g.clock.AfterFunc(d, func() { g.expire(gen) })
	g.evaluateLocked()
}

// Reconcile starts a cooldown from a server-declared window.
func (g *Gate) Reconcile(length time.Duration, end time.Time) time.Duration {
	d := ReconcileCooldown(length, end, g.clock.Now())
	g.StartCooldown(d)
	return d
}

// ClearCooldown cancels the cooldown and re-enables submission if the answer
// field is non-empty.
func (g *Gate) ClearCooldown() {
	g.mu.Lock()
	g.stopLocked()
	g.generation++
	g.cooldown = false
	g.until = time.Time{}
	g.evaluateLocked()
}

func (g *Gate) expire(gen uint64) {
	g.mu.Lock()
	if gen != g.generation {
		g.mu.Unlock()
		return
	}
	g.timer = nil
	g.cooldown = false
	g.until = time.Time{}
	g.evaluateLocked()
}

func (g *Gate) stopLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// evaluateLocked releases g.mu before invoking the callback.
func (g *Gate) evaluateLocked() {
	disabled := g.cooldown || g.emptyAnswer
	fn := g.onChange
	g.mu.Unlock()
	if fn != nil {
		fn(disabled)
	}
}
