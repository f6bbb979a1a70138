package calendar

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// conflict reasons
const (
	ReasonClass = "class"
	ReasonRoom  = "room"
)

// Slot is a half-open time interval [Start, End) on a date.
type Slot struct {
	Date  Date  `json:"date"`
	Start Clock `json:"start_time"`
	End   Clock `json:"end_time"`
}

// Overlaps reports whether both slots are on the same date and their intervals intersect.
// Slots that only touch (one ends when the other starts) do not overlap.
func (s Slot) Overlaps(o Slot) bool {
	return s.Date == o.Date && s.Start < o.End && s.End > o.Start
}

func (s Slot) String() string {
	return fmt.Sprintf("%s %s-%s", s.Date, s.Start, s.End)
}

// Booking is a scheduled record (timetable session or exam) as seen by the conflict checker.
type Booking struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Slot
	ClassID     string `json:"class_id"`
	ClassName   string `json:"class_name,omitempty"`
	SubjectName string `json:"subject_name,omitempty"`
	Room        string `json:"room,omitempty"`
	Title       string `json:"title,omitempty"`
}

// BookingQuery selects the active bookings that may conflict with a candidate:
// dated between From and To (inclusive), overlapping [Start, End) and sharing ClassID or Room.
type BookingQuery struct {
	From, To          Date
	Start, End        Clock
	ClassID           string
	Room              string
	ExcludeID         string // the record being updated
	ExcludeTemplateID string // sessions generated by this template
}

// QueryFor returns the query matching candidate on its own date.
func QueryFor(candidate Booking) BookingQuery {
	return BookingQuery{
		From:      candidate.Date,
		To:        candidate.Date,
		Start:     candidate.Start,
		End:       candidate.End,
		ClassID:   candidate.ClassID,
		Room:      strings.TrimSpace(candidate.Room),
		ExcludeID: candidate.ID,
	}
}

// Conflict is an existing booking clashing with a candidate, and why.
type Conflict struct {
	Booking
	Reasons []string `json:"reasons"`
}

// SameRoom compares room names ignoring case and surrounding spaces. Unnamed rooms never match.
func SameRoom(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	return a != "" && a == b
}

// DetectConflicts returns the existing bookings overlapping candidate while sharing its class or room,
// sorted by date and start time. The candidate's own record (same ID) is ignored.
func DetectConflicts(candidate Booking, existing []Booking) []Conflict {
	conflicts := make([]Conflict, 0)
	for _, b := range existing {
		if candidate.ID != "" && b.ID == candidate.ID {
			continue
		}
		if !b.Overlaps(candidate.Slot) {
			continue
		}
		var reasons []string
		if candidate.ClassID != "" && b.ClassID == candidate.ClassID {
			reasons = append(reasons, ReasonClass)
		}
		if SameRoom(b.Room, candidate.Room) {
			reasons = append(reasons, ReasonRoom)
		}
		if len(reasons) > 0 {
			conflicts = append(conflicts, Conflict{Booking: b, Reasons: reasons})
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		ci, cj := conflicts[i], conflicts[j]
		if ci.Date != cj.Date {
			return ci.Date.Before(cj.Date)
		}
		return ci.Start < cj.Start
	})
	return conflicts
}

// ConflictError is returned when a write would create overlapping bookings.
// It carries the conflicting records so the caller can offer to force the write.
type ConflictError struct {
	Conflicts []Conflict
}

func NewConflictError(conflicts []Conflict) error {
	return &ConflictError{Conflicts: conflicts}
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 1 {
		c := e.Conflicts[0]
		return fmt.Sprintf("conflicts with %s %s (%s)", c.Kind, c.Slot, strings.Join(c.Reasons, ", "))
	}
	return fmt.Sprintf("conflicts with %d existing bookings", len(e.Conflicts))
}

// AsConflictError returns the *ConflictError at the root of err, if any.
func AsConflictError(err error) (*ConflictError, bool) {
	cErr, ok := errors.Cause(err).(*ConflictError)
	return cErr, ok
}
