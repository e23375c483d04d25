package window

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Buffer absorbs clock and network skew before a running window counts as expired.
const Buffer = 30 * time.Second

// MinDuration is the shortest window a challenge may run.
const MinDuration = 5 * time.Minute

const (
	dateLayout        = "2006-01-02"
	timeLayout        = "15:04"
	timeLayoutSeconds = "15:04:05"
)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidTime  = errors.New("invalid time of day")
	ErrEndNotAfter  = errors.New("window end must be after start")
	ErrTooShort     = errors.New("window shorter than minimum duration")
	ErrStartInPast  = errors.New("window start is not in the future")
	ErrZeroInstants = errors.New("window instants are not set")
)

// Phase classifies an instant against a window.
type Phase string

const (
	PhaseBeforeStart         Phase = "BEFORE_START"
	PhaseInWindow            Phase = "IN_WINDOW"
	PhasePastEndWithinBuffer Phase = "PAST_END_WITHIN_BUFFER"
	PhaseExpired             Phase = "EXPIRED"
)

// Window is the closed interval [Start, End] during which trades count.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New builds a window from two instants, normalized to UTC.
func New(start, end time.Time) Window {
	return Window{Start: start.UTC(), End: end.UTC()}
}

// Anchored builds a window starting at start and lasting d.
func Anchored(start time.Time, d time.Duration) Window {
	return New(start, start.Add(d))
}

// Combine joins a calendar date and a time of day into an instant in loc.
func Combine(date, timeOfDay string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	tod := strings.TrimSpace(timeOfDay)
	layout := timeLayout
	if strings.Count(tod, ":") == 2 {
		layout = timeLayoutSeconds
	}
	t, err := time.ParseInLocation(layout, tod, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, timeOfDay)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc).UTC(), nil
}

// Parse converts (startDate, startTime, endDate, endTime) into a window.
func Parse(startDate, startTime, endDate, endTime string, loc *time.Location) (Window, error) {
	start, err := Combine(startDate, startTime, loc)
	if err != nil {
		return Window{}, fmt.Errorf("start: %w", err)
	}
	end, err := Combine(endDate, endTime, loc)
	if err != nil {
		return Window{}, fmt.Errorf("end: %w", err)
	}
	return New(start, end), nil
}

// Validate checks ordering and minimum length.
func (w Window) Validate(min time.Duration) error {
	if w.Start.IsZero() || w.End.IsZero() {
		return ErrZeroInstants
	}
	if !w.End.After(w.Start) {
		return ErrEndNotAfter
	}
	if w.Duration() < min {
		return fmt.Errorf("%w: %s < %s", ErrTooShort, w.Duration(), min)
	}
	return nil
}

// Duration is End - Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// DurationDays rounds the window length up to whole days.
func (w Window) DurationDays() int {
	d := w.Duration()
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// SettleableAt is the first instant a running window may be settled naturally.
func (w Window) SettleableAt() time.Time {
	return w.End.Add(Buffer)
}

// Classify returns exactly one phase for now.
func (w Window) Classify(now time.Time) Phase {
	switch {
	case now.Before(w.Start):
		return PhaseBeforeStart
	case !now.After(w.End):
		return PhaseInWindow
	case now.Before(w.SettleableAt()):
		return PhasePastEndWithinBuffer
	default:
		return PhaseExpired
	}
}

// Contains reports whether t lies in [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Remaining is the time left until End, zero once passed.
func (w Window) Remaining(now time.Time) time.Duration {
	if now.After(w.End) {
		return 0
	}
	return w.End.Sub(now)
}

// UntilStart is the time left until Start, zero once passed.
func (w Window) UntilStart(now time.Time) time.Duration {
	if !now.Before(w.Start) {
		return 0
	}
	return w.Start.Sub(now)
}
