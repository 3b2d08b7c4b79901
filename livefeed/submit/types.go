package submit

import (
	"encoding/json"
	"time"
)

// Status values of a successful submission reply.
const (
	StatusCorrect = "correct"
	StatusEureka  = "eureka"
	StatusWrong   = "wrong"
)

// Error codes carried by failed submission replies.
const (
	CodeTooFast         = "too fast"
	CodeAlreadyAnswered = "already answered"
	CodeNoAnswer        = "no answer given"
)

// Response is the JSON reply to an answer submission.
type Response struct {
	Status        string          `json:"status"`
	Message       string          `json:"message,omitempty"`
	Guess         string          `json:"guess,omitempty"`
	By            string          `json:"by,omitempty"`
	TimeoutLength float64         `json:"timeout_length,omitempty"` // milliseconds
	TimeoutEnd    string          `json:"timeout_end,omitempty"`
	Unlocks       json.RawMessage `json:"unlocks,omitempty"`
}

// Cooldown returns the nominal cooldown length declared by the server.
func (r *Response) Cooldown() time.Duration {
	return time.Duration(r.TimeoutLength * float64(time.Millisecond))
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
