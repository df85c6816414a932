package mapengine

import "time"

// crossfade produces the blend factor of the "next" slot over a fixed
// window. When a fade is retargeted mid-flight the new fade starts from
// the blend it had at cancellation, so opacity stays continuous.
type crossfade struct {
	start    time.Time
	duration time.Duration
	from     float64
}

func newCrossfade(now time.Time, duration time.Duration) *crossfade {
	return &crossfade{start: now, duration: duration}
}

// retarget restarts the timer, pinning the starting blend at the current
// position.
func (f *crossfade) retarget(now time.Time) {
	f.from = f.blend(now)
	f.start = now
}

// blend returns the eased blend factor in [from, 1] at time now.
func (f *crossfade) blend(now time.Time) float64 {
	elapsed := now.Sub(f.start)
	if elapsed <= 0 {
		return f.from
	}
	if elapsed >= f.duration {
		return 1
	}
	t := easeInOutCubic(float64(elapsed) / float64(f.duration))
	return f.from + (1-f.from)*t
}

// done reports whether the fade has reached its terminal position.
func (f *crossfade) done(now time.Time) bool {
	return now.Sub(f.start) >= f.duration
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	u := 2*t - 2
	return 1 + u*u*u/2
}
