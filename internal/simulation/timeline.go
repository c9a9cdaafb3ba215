package simulation

import (
	"math"
	"time"
)

// speedEpsilon is the smallest speed change that is applied.
const speedEpsilon = 0.0001

// timeline is the clock state of a simulation. It converts wall time into
// simulated milliseconds:
//
//	pointInTime = (ref - start - paused) * speed + speedCorrection + fastForward
//
// where ref is now while running, the pause instant while paused, and the
// end instant once finished or terminated. Callers serialize access.
type timeline struct {
	start    time.Time
	paused   time.Duration
	pausedAt time.Time
	end      time.Time
	speed    float64

	speedCorrection int64
	fastForward     int64
}

func newTimeline(speed float64) timeline {
	return timeline{speed: speed}
}

func (t *timeline) pointInTime(state State, now time.Time) int64 {
	var ref time.Time
	switch state {
	case Running:
		ref = now
	case Paused:
		ref = t.pausedAt
	case Finished, Terminated:
		ref = t.end
	default:
		return 0
	}
	if t.start.IsZero() {
		// stopped before it was ever started
		return 0
	}
	elapsed := float64(ref.Sub(t.start)-t.paused) / float64(time.Millisecond)
	return int64(elapsed*t.speed) + t.speedCorrection + t.fastForward
}

func (t *timeline) begin(now time.Time) {
	t.start = now
}

func (t *timeline) pause(now time.Time) {
	t.pausedAt = now
}

// resume folds the pause into the paused total, so pointInTime continues
// from the value it was frozen at.
func (t *timeline) resume(now time.Time) {
	t.paused += now.Sub(t.pausedAt)
}

func (t *timeline) finish(now time.Time) {
	t.end = now
}

// changeSpeed switches to a new rate of advance while keeping pointInTime
// continuous at now. It reports whether the speed changed.
func (t *timeline) changeSpeed(state State, now time.Time, speed float64) bool {
	if math.Abs(speed-t.speed) <= speedEpsilon {
		return false
	}
	if state == Initialized || t.start.IsZero() {
		// no simulated time has elapsed yet
		t.speed = speed
		return true
	}
	pit := t.pointInTime(state, now)
	base := pit - t.fastForward
	t.speedCorrection = base - int64(float64(base-t.speedCorrection)/t.speed*speed)
	t.speed = speed
	return true
}

func (t *timeline) fastForwardBy(delta int64) {
	t.fastForward += delta
}

// maxWait bounds a single sleep of the driver loop.
const maxWait = time.Duration(math.MaxInt64)

// wallDuration converts simulated milliseconds into the wall time they take
// at the current speed, rounded up so a wake-up never lands early. Waits
// beyond the range of time.Duration are capped at maxWait.
func (t *timeline) wallDuration(simMillis int64) time.Duration {
	ns := math.Ceil(float64(simMillis) * float64(time.Millisecond) / t.speed)
	if ns >= float64(maxWait) || math.IsNaN(ns) {
		return maxWait
	}
	return time.Duration(ns)
}
