package timerset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleAndFireOrder(t *testing.T) {
	s := New()
	base := time.Unix(1000, 0)

	var fired []int
	mk := func(id int, at time.Time) *Timer {
		tm := s.NewTimer(id, func(time.Time) { fired = append(fired, id) })
		s.ScheduleAt(tm, at)
		return tm
	}

	mk(3, base.Add(3*time.Second))
	mk(1, base.Add(1*time.Second))
	mk(2, base.Add(2*time.Second))

	n := s.FireExpired(base.Add(2500 * time.Millisecond))
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 2}, fired)
	assert.Equal(t, 1, s.Len())
}

func TestStableOnTies(t *testing.T) {
	s := New()
	at := time.Unix(2000, 0)
	var fired []int
	for i := 0; i < 5; i++ {
		id := i
		tm := s.NewTimer(id, func(time.Time) { fired = append(fired, id) })
		s.ScheduleAt(tm, at)
	}
	s.FireExpired(at)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, fired)
}

func TestUnscheduleIsIdempotent(t *testing.T) {
	s := New()
	tm := s.NewTimer(nil, func(time.Time) {})
	s.ScheduleAt(tm, time.Unix(1, 0))
	require.True(t, tm.Scheduled())
	s.Unschedule(tm)
	assert.False(t, tm.Scheduled())
	assert.NotPanics(t, func() { s.Unschedule(tm) })
}

func TestFireExpiredAllowsReschedule(t *testing.T) {
	s := New()
	base := time.Unix(5000, 0)
	var count int
	var tm *Timer
	tm = s.NewTimer(nil, func(now time.Time) {
		count++
		if count < 3 {
			s.ScheduleAt(tm, base) // reschedule for immediate re-fire
		}
	})
	s.ScheduleAt(tm, base)

	// each callback re-inserts the timer at base (a fresh heap insertion,
	// not an in-place mutation); base is not after now, so the first
	// FireExpired call pops it again and fires it three times in a row,
	// and the later calls find nothing due.
	s.FireExpired(base)
	s.FireExpired(base)
	s.FireExpired(base)
	assert.Equal(t, 3, count)
}

func TestNextExpiration(t *testing.T) {
	s := New()
	_, ok := s.NextExpiration()
	assert.False(t, ok)

	at := time.Unix(42, 0)
	tm := s.NewTimer(nil, func(time.Time) {})
	s.ScheduleAt(tm, at)
	got, ok := s.NextExpiration()
	require.True(t, ok)
	assert.True(t, got.Equal(at))
}
