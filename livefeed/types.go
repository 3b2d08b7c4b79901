package livefeed

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

const (
	requestGuesses = "guesses-plz"
	requestHints   = "hints-plz"
	requestUnlocks = "unlocks-plz"

	// FromAll asks the server for the complete history of a category.
	FromAll = "all"
)

// Request is the envelope sent from client to server.
type Request struct {
	Type string `json:"type"`
	From any    `json:"from,omitempty"`
}

// GuessesSince requests guesses newer than the given marker.
func GuessesSince(marker time.Time) Request {
	return Request{Type: requestGuesses, From: marker.UnixMilli()}
}

// HintsSince requests hints newer than the given marker.
func HintsSince(marker time.Time) Request {
	return Request{Type: requestHints, From: marker.UnixMilli()}
}

// AllGuesses requests every guess of the team on this puzzle.
func AllGuesses() Request { return Request{Type: requestGuesses, From: FromAll} }

// AllHints requests every hint released for this puzzle.
func AllHints() Request { return Request{Type: requestHints, From: FromAll} }

// Unlocks requests the current unlock state. Unlocks never resync incrementally;
// withAll only marks whether this is the first request of the session.
func Unlocks(withAll bool) Request {
	if withAll {
		return Request{Type: requestUnlocks, From: FromAll}
	}
	return Request{Type: requestUnlocks}
}

// BackfillRequests returns the three requests sent when a connection opens.
// A zero marker means the client holds no prior state.
func BackfillRequests(marker time.Time) []Request {
	if marker.IsZero() {
		return []Request{AllGuesses(), AllHints(), Unlocks(true)}
	}
	return []Request{GuessesSince(marker), HintsSince(marker), Unlocks(false)}
}

// Frame is the envelope server -> client.
type Frame struct {
	Type    Kind            `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// UID is a server-assigned unique id. The server may send it as a number or a string.
type UID string

func (u *UID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*u = UID(n.String())
	return nil
}

func (u UID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(u))
}

// HintTime is the release time of a hint as displayed by the server. It keeps the raw
// text for display and orders numerically, then chronologically, then lexically.
type HintTime struct {
	Raw string
}

func (h *HintTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &h.Raw)
	}
	if bytes.Equal(data, []byte("null")) {
		h.Raw = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	h.Raw = n.String()
	return nil
}

func (h HintTime) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseFloat(h.Raw, 64); err == nil {
		return []byte(h.Raw), nil
	}
	return json.Marshal(h.Raw)
}

func (h HintTime) String() string { return h.Raw }

// Before reports whether h sorts strictly before o. Numeric times sort first,
// then parseable timestamps, then anything else by raw text. Each time is
// classified once so the order stays consistent across mixed formats.
func (h HintTime) Before(o HintTime) bool {
	a, b := h.sortKey(), o.sortKey()
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	switch a.rank {
	case rankNumeric:
		return a.num < b.num
	case rankInstant:
		return a.at.Before(b.at)
	default:
		return a.raw < b.raw
	}
}

const (
	rankNumeric = iota
	rankInstant
	rankText
)

type hintSortKey struct {
	rank int
	num  float64
	at   time.Time
	raw  string
}

func (h HintTime) sortKey() hintSortKey {
	if n, err := strconv.ParseFloat(h.Raw, 64); err == nil && !math.IsNaN(n) {
		return hintSortKey{rank: rankNumeric, num: n}
	}
	if at, err := ParseInstant(h.Raw); err == nil {
		return hintSortKey{rank: rankInstant, at: at}
	}
	return hintSortKey{rank: rankText, raw: h.Raw}
}
