package livefeed

import (
	"slices"
	"sync"
)

// Guess is a rendered entry of the guesses list.
type Guess struct {
	UID     UID
	By      string
	Text    string
	Correct bool
}

// Hint is a rendered entry of the hints list.
type Hint struct {
	UID  UID
	Text string
	Time HintTime
}

// Eureka is a rendered entry of the eurekas list.
type Eureka struct {
	UID  UID
	Text string
}

// Feed holds the visible state of one puzzle page: three seen-sets and the lists
// they guard. Guesses and eurekas are kept most recent first; hints are projected
// in ascending time order.
type Feed struct {
	mu sync.RWMutex

	seenGuesses *SeenSet
	seenHints   *SeenSet
	seenEurekas *SeenSet

	guesses   []Guess
	eurekas   []Eureka
	hints     map[UID]Hint
	hintOrder []UID
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{
		seenGuesses: NewSeenSet(),
		seenHints:   NewSeenSet(),
		seenEurekas: NewSeenSet(),
		hints:       make(map[UID]Hint),
	}
}

// ApplyGuess prepends the guess unless its uid was already applied.
func (f *Feed) ApplyGuess(ev GuessEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.seenGuesses.Add(ev.UID) {
		return false
	}
	f.guesses = slices.Insert(f.guesses, 0, Guess{UID: ev.UID, By: ev.By, Text: ev.Guess, Correct: ev.Correct})
	return true
}

// ApplyHint stores the hint under its uid, replacing any earlier version.
// It reports whether the visible hint list changed.
func (f *Feed) ApplyHint(ev HintEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := Hint{UID: ev.UID, Text: ev.Hint, Time: ev.Time}
	if f.seenHints.Add(ev.UID) {
		f.hintOrder = append(f.hintOrder, ev.UID)
	} else if f.hints[ev.UID] == h {
		return false
	}
	f.hints[ev.UID] = h
	return true
}

// ApplyEureka prepends the eureka unless its uid was already applied.
func (f *Feed) ApplyEureka(ev EurekaEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.seenEurekas.Add(ev.UID) {
		return false
	}
	f.eurekas = slices.Insert(f.eurekas, 0, Eureka{UID: ev.UID, Text: ev.Eureka})
	return true
}

// Guesses returns the guesses, most recent first.
func (f *Feed) Guesses() []Guess {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.guesses)
}

// Eurekas returns the eurekas, most recent first.
func (f *Feed) Eurekas() []Eureka {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.eurekas)
}

// Hints returns the hints in ascending time order. Hints with equal times keep
// their arrival order.
func (f *Feed) Hints() []Hint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Hint, 0, len(f.hintOrder))
	for _, uid := range f.hintOrder {
		out = append(out, f.hints[uid])
	}
	slices.SortStableFunc(out, func(a, b Hint) int {
		switch {
		case a.Time.Before(b.Time):
			return -1
		case b.Time.Before(a.Time):
			return 1
		}
		return 0
	})
	return out
}

// Seen returns the number of distinct ids applied per category.
func (f *Feed) Seen() (guesses, hints, eurekas int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.seenGuesses.Len(), f.seenHints.Len(), f.seenEurekas.Len()
}
