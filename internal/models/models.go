package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Timeslot is one of the fixed meal categories a user may prefer
type Timeslot string

const (
	Breakfast Timeslot = "breakfast"
	Lunch     Timeslot = "lunch"
	Tea       Timeslot = "tea"
)

// Timeslots lists every timeslot in the order the matcher processes them
var Timeslots = []Timeslot{Breakfast, Lunch, Tea}

// ParseTimeslot converts a raw value into a known timeslot
func ParseTimeslot(raw string) (Timeslot, error) {
	for _, slot := range Timeslots {
		if string(slot) == raw {
			return slot, nil
		}
	}
	return "", fmt.Errorf("unknown timeslot %q", raw)
}

// NormalizeTimeslots validates raw timeslot names and drops duplicates, keeping first occurrence order
func NormalizeTimeslots(raw []string) ([]Timeslot, error) {
	slots := make([]Timeslot, 0, len(raw))
	seen := make(map[Timeslot]bool, len(raw))
	for _, r := range raw {
		slot, err := ParseTimeslot(r)
		if err != nil {
			return nil, err
		}
		if seen[slot] {
			continue
		}
		seen[slot] = true
		slots = append(slots, slot)
	}
	return slots, nil
}

// User represents a user that can be matched into a session
type User struct {
	ID                 string     `json:"id"`
	Eligible           bool       `json:"eligible"`
	PreferredTimeslots []Timeslot `json:"preferred_timeslots"`
	EligibleSince      time.Time  `json:"eligible_since"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Prefers reports whether the user listed the timeslot
func (u *User) Prefers(slot Timeslot) bool {
	for _, s := range u.PreferredTimeslots {
		if s == slot {
			return true
		}
	}
	return false
}

// Pair is two users selected to share a session
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

func (p Pair) String() string {
	return p.A + "+" + p.B
}

// Session represents a meal session between exactly two users
type Session struct {
	ID           string    `json:"id"`
	Participants [2]string `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewSession builds a session for a pair, stamped with the given time
func NewSession(pair Pair, now time.Time) (*Session, error) {
	if pair.A == "" || pair.B == "" {
		return nil, fmt.Errorf("session participants must not be empty")
	}
	if pair.A == pair.B {
		return nil, fmt.Errorf("cannot create session with the same user twice")
	}
	return &Session{
		ID:           uuid.New().String(),
		Participants: [2]string{pair.A, pair.B},
		CreatedAt:    now,
	}, nil
}

// Pair returns the participants as a pair
func (s *Session) Pair() Pair {
	return Pair{A: s.Participants[0], B: s.Participants[1]}
}
