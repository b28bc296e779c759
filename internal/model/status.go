package model

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// transitions is the delivery state machine. read and abandoned have no exits.
var transitions = map[Status][]Status{
	StatusQueued:    {StatusSending},
	StatusSending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered, StatusFailed},
	StatusDelivered: {StatusRead},
	StatusFailed:    {StatusSending, StatusAbandoned},
	StatusRead:      nil,
	StatusAbandoned: nil,
}

func Statuses() []Status {
	return []Status{
		StatusQueued, StatusSending, StatusSent, StatusDelivered,
		StatusRead, StatusFailed, StatusAbandoned,
	}
}

// ParseStatus accepts every known status plus the carrier alias
// "undelivered", which is reported as failed.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s == "undelivered" {
		return StatusFailed, nil
	}
	if _, ok := transitions[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Succeeded reports whether the carrier has confirmed receipt.
func (s Status) Succeeded() bool {
	return s == StatusDelivered || s == StatusRead
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PathTo returns the shortest chain of legal moves leading from one status to
// another, excluding from. ok is false when to is unreachable or equal to from.
func PathTo(from, to Status) ([]Status, bool) {
	if from == to || !from.Valid() || !to.Valid() {
		return nil, false
	}
	prev := map[Status]Status{from: from}
	frontier := []Status{from}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, next := range transitions[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == to {
				var path []Status
				for s := to; s != from; s = prev[s] {
					path = append([]Status{s}, path...)
				}
				return path, true
			}
			frontier = append(frontier, next)
		}
	}
	return nil, false
}
