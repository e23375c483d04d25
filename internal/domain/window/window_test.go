package window

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombine(t *testing.T) {
	got, err := Combine("2026-03-01", "14:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC), got)

	got, err = Combine("2026-03-01", "14:30:15", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Second())

	sp, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	got, err = Combine("2026-03-01", "09:00", sp)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 12, got.Hour())

	_, err = Combine("01/03/2026", "09:00", time.UTC)
	assert.True(t, errors.Is(err, ErrInvalidDate))
	_, err = Combine("2026-03-01", "9am", time.UTC)
	assert.True(t, errors.Is(err, ErrInvalidTime))
}

func TestParseAndValidate(t *testing.T) {
	w, err := Parse("2026-03-01", "10:00", "2026-03-01", "10:05", time.UTC)
	require.NoError(t, err)
	require.NoError(t, w.Validate(MinDuration))
	assert.Equal(t, 5*time.Minute, w.Duration())
	assert.Equal(t, 1, w.DurationDays())

	short, err := Parse("2026-03-01", "10:00", "2026-03-01", "10:04:59", time.UTC)
	require.NoError(t, err)
	assert.True(t, errors.Is(short.Validate(MinDuration), ErrTooShort))

	inverted, err := Parse("2026-03-02", "10:00", "2026-03-01", "10:00", time.UTC)
	require.NoError(t, err)
	assert.True(t, errors.Is(inverted.Validate(MinDuration), ErrEndNotAfter))

	assert.True(t, errors.Is(Window{}.Validate(MinDuration), ErrZeroInstants))
}

func TestDurationDays(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, Anchored(start, 24*time.Hour).DurationDays())
	assert.Equal(t, 2, Anchored(start, 25*time.Hour).DurationDays())
	assert.Equal(t, 7, Anchored(start, 7*24*time.Hour).DurationDays())
}

func TestClassify(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w := Anchored(start, time.Hour)

	cases := []struct {
		name string
		now  time.Time
		want Phase
	}{
		{"before", start.Add(-time.Second), PhaseBeforeStart},
		{"at start", start, PhaseInWindow},
		{"middle", start.Add(30 * time.Minute), PhaseInWindow},
		{"at end", w.End, PhaseInWindow},
		{"just after end", w.End.Add(time.Nanosecond), PhasePastEndWithinBuffer},
		{"inside buffer", w.End.Add(Buffer - time.Second), PhasePastEndWithinBuffer},
		{"buffer elapsed", w.End.Add(Buffer), PhaseExpired},
		{"long after", w.End.Add(48 * time.Hour), PhaseExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, w.Classify(tc.now))
		})
	}
}

// Every instant maps to exactly one phase and phases never go backwards.
func TestClassifyIsTotalAndMonotonic(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	order := map[Phase]int{
		PhaseBeforeStart:         0,
		PhaseInWindow:            1,
		PhasePastEndWithinBuffer: 2,
		PhaseExpired:             3,
	}
	for _, length := range []time.Duration{MinDuration, time.Hour, 72 * time.Hour} {
		w := Anchored(start, length)
		last := -1
		for now := start.Add(-2 * time.Minute); now.Before(w.End.Add(2 * time.Minute)); now = now.Add(7 * time.Second) {
			p := w.Classify(now)
			rank, ok := order[p]
			require.True(t, ok, "unknown phase %q", p)
			require.GreaterOrEqual(t, rank, last, "phase regressed at %s", now)
			last = rank
		}
		assert.Equal(t, 3, last)
	}
}

func TestContainsAndRemaining(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w := Anchored(start, time.Hour)

	assert.True(t, w.Contains(start))
	assert.True(t, w.Contains(w.End))
	assert.False(t, w.Contains(start.Add(-time.Nanosecond)))
	assert.False(t, w.Contains(w.End.Add(time.Nanosecond)))

	assert.Equal(t, time.Hour, w.Remaining(start))
	assert.Equal(t, time.Duration(0), w.Remaining(w.End.Add(time.Second)))
	assert.Equal(t, time.Minute, w.UntilStart(start.Add(-time.Minute)))
	assert.Equal(t, time.Duration(0), w.UntilStart(start))
	assert.Equal(t, w.End.Add(Buffer), w.SettleableAt())
}
