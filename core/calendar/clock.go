package calendar

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Clock is a time of day, in minutes since midnight.
type Clock int

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "15:04" and "15:04:05" (seconds are dropped).
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errors.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, errors.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, errors.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 && !validSeconds(parts[2]) {
		return 0, errors.Errorf("invalid second in %q", s)
	}
	return NewClock(h, m), nil
}

// validSeconds accepts SS with an optional fraction (SS.ffffff), as postgres prints time columns.
func validSeconds(s string) bool {
	sec, frac, hasFrac := strings.Cut(s, ".")
	if n, err := strconv.Atoi(sec); err != nil || len(sec) != 2 || n < 0 || n > 59 {
		return false
	}
	if hasFrac {
		if _, err := strconv.ParseUint(frac, 10, 64); err != nil {
			return false
		}
	}
	return true
}

// MustParseClock is like ParseClock but panics on error.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// UnmarshalParam implements echo.BindUnmarshaler.
func (c *Clock) UnmarshalParam(param string) error {
	return c.UnmarshalText([]byte(param))
}

func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*c = NewClock(v.Hour(), v.Minute())
	case string:
		return c.UnmarshalText([]byte(v))
	case []byte:
		return c.UnmarshalText(v)
	case int64: // microseconds since midnight
		*c = Clock(v / int64(time.Minute/time.Microsecond))
	default:
		return errors.Errorf("cannot scan %T into calendar.Clock", src)
	}
	return nil
}

func (c Clock) Value() (driver.Value, error) {
	return c.String(), nil
}
