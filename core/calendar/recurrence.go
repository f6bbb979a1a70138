package calendar

import (
	"fmt"
	"time"

	"github.com/trezcool/ratiba/core"
)

type Recurrence string

const (
	Weekly   Recurrence = "weekly"
	Biweekly Recurrence = "biweekly"
	Monthly  Recurrence = "monthly"
	Custom   Recurrence = "custom"
)

var Recurrences = []Recurrence{Weekly, Biweekly, Monthly, Custom}

func (r Recurrence) IsValid() bool {
	for _, rec := range Recurrences {
		if r == rec {
			return true
		}
	}
	return false
}

// Rule expands into the dates of a recurring schedule.
//
//   - weekly: every date in [Start, End] whose weekday is in Weekdays.
//   - biweekly: same, every other week, counting weeks (Monday based) from the week of Start.
//   - monthly: same weekday-of-month as the first occurrence of each weekday on or after Start,
//     e.g. "2nd Tuesday". Months without that occurrence are skipped.
//   - custom: no decimation; an empty weekday set selects every day.
//
// Exclusions are removed last. A rule whose End is before its Start is empty.
type Rule struct {
	Start      Date
	End        Date
	Weekdays   WeekdaySet
	Recurrence Recurrence
	Exclusions []Date
}

// Each calls fn for every date of the rule in ascending order, until fn returns false.
// It can be called any number of times and always yields the same dates.
func (r Rule) Each(fn func(Date) bool) {
	if r.Start.IsZero() || r.End.IsZero() || r.End.Before(r.Start) {
		return
	}

	excluded := make(map[Date]struct{}, len(r.Exclusions))
	for _, d := range r.Exclusions {
		excluded[d] = struct{}{}
	}
	match := r.matcher()

	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		if !match(d) {
			continue
		}
		if _, ok := excluded[d]; ok {
			continue
		}
		if !fn(d) {
			return
		}
	}
}

// Dates returns all the dates of the rule in ascending order.
func (r Rule) Dates() []Date {
	dates := make([]Date, 0)
	r.Each(func(d Date) bool {
		dates = append(dates, d)
		return true
	})
	return dates
}

func (r Rule) matcher() func(Date) bool {
	switch r.Recurrence {
	case Weekly:
		return func(d Date) bool { return r.Weekdays.Has(d.Weekday()) }

	case Biweekly:
		anchor := mondayOf(r.Start)
		return func(d Date) bool {
			if !r.Weekdays.Has(d.Weekday()) {
				return false
			}
			return (DaysBetween(anchor, d)/7)%2 == 0
		}

	case Monthly:
		ordinals := make(map[time.Weekday]int, 7)
		for _, wd := range r.Weekdays.Days() {
			offset := (int(wd) - int(r.Start.Weekday()) + 7) % 7
			ordinals[wd] = r.Start.AddDays(offset).weekOfMonth()
		}
		return func(d Date) bool {
			ord, ok := ordinals[d.Weekday()]
			return ok && d.weekOfMonth() == ord
		}

	case Custom:
		return func(d Date) bool { return r.Weekdays.IsEmpty() || r.Weekdays.Has(d.Weekday()) }

	default:
		return func(Date) bool { return false }
	}
}

// Validate checks the rule can be expanded. maxDays bounds the length of the range (ignored when <= 0).
func (r Rule) Validate(maxDays int) error {
	var flds []core.FieldError

	if !r.Recurrence.IsValid() {
		flds = append(flds, core.FieldError{Field: "recurrence", Error: fmt.Sprintf("must be one of %v", Recurrences)})
	}
	if r.Start.IsZero() {
		flds = append(flds, core.FieldError{Field: "start_date", Error: "this field is required"})
	}
	if r.End.IsZero() {
		flds = append(flds, core.FieldError{Field: "end_date", Error: "this field is required"})
	}
	if !r.Start.IsZero() && !r.End.IsZero() {
		if r.End.Before(r.Start) {
			flds = append(flds, core.FieldError{Field: "end_date", Error: "end_date must not be before start_date"})
		} else if maxDays > 0 && DaysBetween(r.Start, r.End)+1 > maxDays {
			flds = append(flds, core.FieldError{Field: "end_date", Error: fmt.Sprintf("date range cannot exceed %d days", maxDays)})
		}
	}
	if r.Recurrence != Custom && r.Weekdays.IsEmpty() {
		flds = append(flds, core.FieldError{Field: "weekdays", Error: "select at least one weekday"})
	}

	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}
