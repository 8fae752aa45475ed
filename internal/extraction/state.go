package extraction

import "fmt"

// State is a step of a single extraction run
type State int

const (
	StateIdle State = iota
	StateRateLimitWait
	StateInvoking
	StateRetrying
	StateParsingResponse
	StateValidating
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateRateLimitWait:   "rate_limit_wait",
	StateInvoking:        "invoking",
	StateRetrying:        "retrying",
	StateParsingResponse: "parsing_response",
	StateValidating:      "validating",
	StateDone:            "done",
	StateFailed:          "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}
