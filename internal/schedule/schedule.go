package schedule

import (
	"fmt"
	"time"
)

// State says where the current moment falls relative to the configured
// session list.
type State int

const (
	NoneScheduled State = iota
	NotYetOpen
	Open
)

// Registration opens this long before a session starts. The boundary is
// inclusive: exactly 24h before start counts as open.
const registrationWindow = 24 * time.Hour

// Schedule is process-wide static config: the ordered session start
// times, the seat limit shared by every session, and the timezone used
// to render session dates.
type Schedule struct {
	Sessions []time.Time
	Capacity int
	Location *time.Location
}

// Validate rejects schedules the selector cannot scan correctly. The
// selector itself never sorts; the list must arrive sorted ascending.
func (s Schedule) Validate() error {
	if s.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", s.Capacity)
	}
	if s.Location == nil {
		return fmt.Errorf("schedule timezone is not set")
	}
	for i := 1; i < len(s.Sessions); i++ {
		if s.Sessions[i].Before(s.Sessions[i-1]) {
			return fmt.Errorf("sessions must be sorted ascending: %s comes after %s",
				s.Sessions[i-1].Format(time.RFC3339), s.Sessions[i].Format(time.RFC3339))
		}
	}
	return nil
}

// DateOf renders a session start as the YYYY-MM-DD key used in the
// apply table, in the schedule's timezone.
func (s Schedule) DateOf(t time.Time) string {
	return t.In(s.Location).Format("2006-01-02")
}

// Current picks the session (if any) relevant right now. It scans the
// sorted list for the first start time not strictly before now; with no
// such entry every session has passed and nothing is scheduled. The
// chosen session is Open when now is within 24 hours of its start,
// NotYetOpen otherwise. Pure function of its inputs.
func Current(now time.Time, s Schedule) (State, string) {
	for _, start := range s.Sessions {
		if start.Before(now) {
			continue
		}
		if start.Sub(now) > registrationWindow {
			return NotYetOpen, s.DateOf(start)
		}
		return Open, s.DateOf(start)
	}
	return NoneScheduled, ""
}
