package livefeed

// Level is the severity of a user-facing message.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelDanger  Level = "danger"
)

// User-facing texts.
const (
	MsgCorrect         = "Correct!"
	MsgTooFast         = "Slow down there, sparky! You're supposed to wait 5s between guesses."
	MsgAlreadyAnswered = "Your team has already correctly answered this puzzle!"
	MsgSubmitFailed    = "There was an error submitting the answer."
	MsgFeedBroken      = "Websocket is broken. You will not receive new information without refreshing the page."
)

// Notifier shows transient feedback to the participant. Persistent messages stay
// until the page is reloaded.
type Notifier interface {
	Notify(level Level, msg string, persistent bool)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, msg string, persistent bool)

func (f NotifierFunc) Notify(level Level, msg string, persistent bool) { f(level, msg, persistent) }

type noopNotifier struct{}

func (noopNotifier) Notify(Level, string, bool) {}
