package domain

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
	StatusBounced   Status = "bounced"
)

// next holds the direct edges of the delivery state machine:
//
//	pending -> sent -> delivered -> read
//	pending -> failed
//	delivered -> bounced
var next = map[Status][]Status{
	StatusPending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered},
	StatusDelivered: {StatusRead, StatusBounced},
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed, StatusBounced:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(next[s]) == 0
}

// CanTransition reports whether to is reachable from from by following
// edges forward. A status is never reachable from itself.
func CanTransition(from, to Status) bool {
	for _, n := range next[from] {
		if n == to || CanTransition(n, to) {
			return true
		}
	}
	return false
}

// Predecessors lists every status from which to is reachable.
func Predecessors(to Status) []Status {
	var out []Status
	for _, s := range []Status{StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed, StatusBounced} {
		if CanTransition(s, to) {
			out = append(out, s)
		}
	}
	return out
}
