package livefeed

// Dispatcher applies decoded frames to a Feed and notifies registered callbacks.
// Callbacks fire only when the event changed the feed.
type Dispatcher struct {
	feed *Feed

	onGuess  func(GuessEvent)
	onHint   func(HintEvent)
	onEureka func(EurekaEvent)
}

// NewDispatcher returns a dispatcher writing into feed.
func NewDispatcher(feed *Feed) *Dispatcher {
	return &Dispatcher{feed: feed}
}

func (d *Dispatcher) SetOnGuess(fn func(GuessEvent))   { d.onGuess = fn }
func (d *Dispatcher) SetOnHint(fn func(HintEvent))     { d.onHint = fn }
func (d *Dispatcher) SetOnEureka(fn func(EurekaEvent)) { d.onEureka = fn }

// Feed returns the feed the dispatcher writes into.
func (d *Dispatcher) Feed() *Feed { return d.feed }

// Dispatch decodes and applies one frame. Unknown kinds and server error events
// are returned as *FeedError; the feed is left untouched in that case.
func (d *Dispatcher) Dispatch(f Frame) error {
	ev, err := DecodeEvent(f)
	if err != nil {
		return err
	}
	return d.Apply(ev)
}

// Apply applies an already decoded event.
func (d *Dispatcher) Apply(ev Event) error {
	switch ev := ev.(type) {
	case GuessEvent:
		if d.feed.ApplyGuess(ev) && d.onGuess != nil {
			d.onGuess(ev)
		}
	case HintEvent:
		if d.feed.ApplyHint(ev) && d.onHint != nil {
			d.onHint(ev)
		}
	case EurekaEvent:
		if d.feed.ApplyEureka(ev) && d.onEureka != nil {
			d.onEureka(ev)
		}
	case ErrorEvent:
		return NewError(ErrorServer, ev.Message)
	default:
		return NewError(ErrorUnknownEvent, "unsupported event")
	}
	return nil
}
