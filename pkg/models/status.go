package models

// URLState is the lifecycle of a single URL within one crawl session
type URLState string

const (
	URLStateUnseen     URLState = ""           // Zero value = never claimed
	URLStateFetching   URLState = "fetching"   // Claimed, download queued or running
	URLStateExtracting URLState = "extracting" // Downloaded, link extraction queued or running
	URLStateDone       URLState = "done"       // Terminal: processed successfully
	URLStateFailed     URLState = "failed"     // Terminal: an error is recorded for the URL
)

// String implements fmt.Stringer for logging
func (s URLState) String() string {
	if s == "" {
		return "unseen"
	}
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s URLState) IsTerminal() bool {
	return s == URLStateDone || s == URLStateFailed
}

// CanTransition reports whether moving from s to next is a legal step.
func (s URLState) CanTransition(next URLState) bool {
	switch s {
	case URLStateUnseen:
		return next == URLStateFetching
	case URLStateFetching:
		return next == URLStateExtracting || next == URLStateDone || next == URLStateFailed
	case URLStateExtracting:
		return next == URLStateDone || next == URLStateFailed
	}
	return false
}
