package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now

	seoulOnce sync.Once
	seoul     *time.Location
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// Seoul returns the reference calendar zone for collection runs.
func Seoul() *time.Location {
	seoulOnce.Do(func() {
		loc, err := time.LoadLocation("Asia/Seoul")
		if err != nil {
			loc = time.FixedZone("KST", 9*60*60)
		}
		seoul = loc
	})
	return seoul
}

// Today returns midnight of the current calendar day in the reference zone.
func Today() time.Time {
	return DayOf(Now())
}

// DayOf truncates a timestamp to midnight of its calendar day in the
// reference zone.
func DayOf(t time.Time) time.Time {
	local := t.In(Seoul())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Seoul())
}

// SameDay reports whether two timestamps fall on the same reference
// calendar day.
func SameDay(a, b time.Time) bool {
	return DayOf(a).Equal(DayOf(b))
}

func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = func() time.Time { return t }
}

func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = time.Now
}
