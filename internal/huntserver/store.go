package huntserver

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Puzzle describes one puzzle served by the reference server.
type Puzzle struct {
	ID      string
	Answer  string
	Eurekas []Eureka
}

// Eureka is a milestone answer with the feedback shown when it is found.
type Eureka struct {
	Answer   string
	Feedback string
}

type guessRecord struct {
	UID     string
	By      string
	Text    string
	Correct bool
	Time    time.Time
}

type hintRecord struct {
	UID  string
	Text string
	Time time.Time
}

type eurekaRecord struct {
	UID  string
	Text string
	Time time.Time
}

// puzzleState is the append-only log of one puzzle.
type puzzleState struct {
	puzzle Puzzle

	mu        sync.RWMutex
	guesses   []guessRecord
	hints     []hintRecord
	eurekas   []eurekaRecord
	solved    bool
	lastGuess time.Time
}

type outcome int

const (
	outcomeWrong outcome = iota
	outcomeCorrect
	outcomeEureka
)

// normalize drops spacing characters and case, as the answer checker does.
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '\t':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(s)))
}

// guessResult is the outcome of one submission.
type guessResult struct {
	refusal  string
	guess    guessRecord
	outcome  outcome
	unlocked *eurekaRecord
	feedback string
}

// submit checks the cooldown, records the guess and reports its outcome and any
// newly unlocked eureka. Refused guesses are not recorded.
func (p *puzzleState) submit(by, text string, now time.Time, cooldown time.Duration) guessResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case !p.lastGuess.IsZero() && now.Sub(p.lastGuess) < cooldown:
		return guessResult{refusal: codeTooFast}
	case text == "":
		return guessResult{refusal: codeNoAnswer}
	case p.solved:
		return guessResult{refusal: codeAlreadyAnswered}
	}

	g := guessRecord{UID: uuid.NewString(), By: by, Text: text, Time: now}
	p.lastGuess = now

	answer := normalize(text)
	if answer == normalize(p.puzzle.Answer) {
		g.Correct = true
		p.solved = true
		p.guesses = append(p.guesses, g)
		return guessResult{guess: g, outcome: outcomeCorrect}
	}
	p.guesses = append(p.guesses, g)

	for _, e := range p.puzzle.Eurekas {
		if answer != normalize(e.Answer) {
			continue
		}
		for _, got := range p.eurekas {
			if normalize(got.Text) == answer {
				return guessResult{guess: g, outcome: outcomeEureka, feedback: e.Feedback}
			}
		}
		rec := eurekaRecord{UID: uuid.NewString(), Text: e.Answer, Time: now}
		p.eurekas = append(p.eurekas, rec)
		return guessResult{guess: g, outcome: outcomeEureka, unlocked: &rec, feedback: e.Feedback}
	}
	return guessResult{guess: g, outcome: outcomeWrong}
}

func (p *puzzleState) addHint(text string, now time.Time) hintRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := hintRecord{UID: uuid.NewString(), Text: text, Time: now}
	p.hints = append(p.hints, h)
	return h
}

// guessesSince returns guesses strictly newer than from; a zero from returns all.
func (p *puzzleState) guessesSince(from time.Time) []guessRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []guessRecord
	for _, g := range p.guesses {
		if from.IsZero() || g.Time.After(from) {
			out = append(out, g)
		}
	}
	return out
}

func (p *puzzleState) hintsSince(from time.Time) []hintRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []hintRecord
	for _, h := range p.hints {
		if from.IsZero() || h.Time.After(from) {
			out = append(out, h)
		}
	}
	return out
}

func (p *puzzleState) unlockedEurekas() []eurekaRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]eurekaRecord, len(p.eurekas))
	copy(out, p.eurekas)
	return out
}
