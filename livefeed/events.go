package livefeed

import "encoding/json"

// Kind tags an inbound frame.
type Kind string

const (
	KindNewGuess  Kind = "new_guess"
	KindOldGuess  Kind = "old_guess"
	KindNewHint   Kind = "new_hint"
	KindOldHint   Kind = "old_hint"
	KindNewEureka Kind = "new_eureka"
	KindOldEureka Kind = "old_eureka"
	KindError     Kind = "error"
)

// Backfill reports whether the kind answers a backfill request rather than a live push.
func (k Kind) Backfill() bool {
	return k == KindOldGuess || k == KindOldHint || k == KindOldEureka
}

// Event is one decoded inbound frame. The set of implementations is closed.
type Event interface {
	Kind() Kind
	event()
}

// GuessEvent is emitted when a team member submits an answer.
type GuessEvent struct {
	Type          Kind            `json:"-"`
	By            string          `json:"by"`
	Guess         string          `json:"guess"`
	Correct       bool            `json:"correct"`
	UID           UID             `json:"guess_uid"`
	Unlocks       json.RawMessage `json:"unlocks,omitempty"`
	TimeoutLength float64         `json:"timeout_length,omitempty"`
	TimeoutEnd    string          `json:"timeout_end,omitempty"`
}

// HintEvent is emitted when a hint is released to the team.
type HintEvent struct {
	Type Kind     `json:"-"`
	Hint string   `json:"hint"`
	Time HintTime `json:"time"`
	UID  UID      `json:"hint_uid"`
}

// EurekaEvent is emitted when the team reaches a milestone answer.
type EurekaEvent struct {
	Type   Kind   `json:"-"`
	Eureka string `json:"eureka"`
	UID    UID    `json:"eureka_uid"`
}

// ErrorEvent carries a server-side protocol error.
type ErrorEvent struct {
	Message string `json:"error"`
}

func (e GuessEvent) Kind() Kind  { return e.Type }
func (e HintEvent) Kind() Kind   { return e.Type }
func (e EurekaEvent) Kind() Kind { return e.Type }
func (ErrorEvent) Kind() Kind    { return KindError }

func (GuessEvent) event()  {}
func (HintEvent) event()   {}
func (EurekaEvent) event() {}
func (ErrorEvent) event()  {}

// DecodeEvent validates the frame tag and decodes its content.
func DecodeEvent(f Frame) (Event, error) {
	switch f.Type {
	case KindNewGuess, KindOldGuess:
		ev := GuessEvent{Type: f.Type}
		if err := decodeContent(f, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindNewHint, KindOldHint:
		ev := HintEvent{Type: f.Type}
		if err := decodeContent(f, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindNewEureka, KindOldEureka:
		ev := EurekaEvent{Type: f.Type}
		if err := decodeContent(f, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindError:
		var ev ErrorEvent
		if err := decodeContent(f, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, NewError(ErrorUnknownEvent, "invalid message type: "+string(f.Type)+", content: "+string(f.Content))
	}
}

func decodeContent(f Frame, v any) error {
	if len(f.Content) == 0 {
		return NewError(ErrorSerialization, "missing content for "+string(f.Type))
	}
	if err := json.Unmarshal(f.Content, v); err != nil {
		return WrapError(ErrorSerialization, "failed to unmarshal "+string(f.Type)+" event", err)
	}
	return nil
}
