package timetable

import "time"

// SetNow replaces the clock used by GenerateActive.
func (svc *Service) SetNow(now func() time.Time) {
	svc.now = now
}
