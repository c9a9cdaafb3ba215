package core

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("RealClock.Now() returned %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	start := time.Now()
	time.Sleep(10 * time.Millisecond)
	elapsed := clock.Since(start)

	if elapsed < 10*time.Millisecond {
		t.Errorf("RealClock.Since() returned %v, expected >= 10ms", elapsed)
	}
}

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	clock.Advance(1 * time.Hour)

	expected := start.Add(1 * time.Hour)
	if !clock.Now().Equal(expected) {
		t.Errorf("after Advance(1h), Now() returned %v, expected %v", clock.Now(), expected)
	}
	if clock.Since(start) != time.Hour {
		t.Errorf("Since(start) = %v, expected 1h", clock.Since(start))
	}
}

func TestFakeClock_Set(t *testing.T) {
	clock := NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	newTime := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)

	clock.Set(newTime)

	if !clock.Now().Equal(newTime) {
		t.Errorf("after Set(), Now() returned %v, expected %v", clock.Now(), newTime)
	}
}

func TestFakeClock_ConcurrentAccess(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			_ = clock.Since(start)
		}()
	}
	wg.Wait()

	if got := clock.Since(start); got != 10*time.Millisecond {
		t.Errorf("after 10 concurrent advances, Since(start) = %v, expected 10ms", got)
	}
}
