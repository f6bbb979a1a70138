package calendar

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// WeekdaySet is a set of weekdays stored as a bitmask (bit 0 is Sunday).
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.Add(d)
	}
	return s
}

// ParseWeekday accepts English weekday names ("mon", "Monday") and numbers ("1").
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdayNames[s]; ok {
		return d, nil
	}
	if len(s) == 1 && s[0] >= '0' && s[0] <= '6' {
		return time.Weekday(s[0] - '0'), nil
	}
	return 0, errors.Errorf("invalid weekday %q", s)
}

func (s WeekdaySet) Add(d time.Weekday) WeekdaySet {
	if d < time.Sunday || d > time.Saturday {
		return s
	}
	return s | 1<<uint(d)
}

func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

func (s WeekdaySet) IsEmpty() bool {
	return s&0x7f == 0
}

// Days returns the weekdays of the set, Sunday first.
func (s WeekdaySet) Days() []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

func (s WeekdaySet) String() string {
	names := make([]string, 0, 7)
	for _, d := range s.Days() {
		names = append(names, d.String()[:3])
	}
	return strings.Join(names, ",")
}

func (s WeekdaySet) MarshalJSON() ([]byte, error) {
	days := s.Days()
	nums := make([]int, 0, len(days))
	for _, d := range days {
		nums = append(nums, int(d))
	}
	return json.Marshal(nums)
}

// UnmarshalJSON accepts a list of weekday numbers (0 is Sunday) or names.
func (s *WeekdaySet) UnmarshalJSON(b []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "weekdays must be a list")
	}
	var set WeekdaySet
	for _, v := range raw {
		switch val := v.(type) {
		case float64:
			if val < 0 || val > 6 || val != float64(int(val)) {
				return errors.Errorf("invalid weekday %v", val)
			}
			set = set.Add(time.Weekday(int(val)))
		case string:
			d, err := ParseWeekday(val)
			if err != nil {
				return err
			}
			set = set.Add(d)
		default:
			return errors.Errorf("invalid weekday %v", val)
		}
	}
	*s = set
	return nil
}

func (s *WeekdaySet) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*s = WeekdaySet(v)
	case nil:
		*s = 0
	default:
		return errors.Errorf("cannot scan %T into calendar.WeekdaySet", src)
	}
	return nil
}

func (s WeekdaySet) Value() (driver.Value, error) {
	return int64(s), nil
}
