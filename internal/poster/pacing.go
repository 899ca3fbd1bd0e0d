package poster

import (
	"math/rand"
	"time"
)

// Pacer inserts randomized, interruptible delays between jobs.
type Pacer struct {
	// Unit is the length of one delay unit (default 1s).
	Unit time.Duration
	// Step is the sleep increment; it never exceeds Unit.
	Step time.Duration

	// wait sleeps for d or until done closes; it reports whether d fully elapsed.
	wait func(done <-chan struct{}, d time.Duration) bool
}

func NewPacer(unit, step time.Duration) *Pacer {
	p := &Pacer{Unit: unit, Step: step}
	return p.normalized()
}

func (p *Pacer) normalized() *Pacer {
	if p.Unit <= 0 {
		p.Unit = time.Second
	}
	if p.Step <= 0 || p.Step > p.Unit {
		p.Step = p.Unit
	}
	if p.wait == nil {
		p.wait = timerWait
	}
	return p
}

// Draw picks a delay uniformly in [lo, hi] units.
func (p *Pacer) Draw(rng *rand.Rand, lo, hi int) time.Duration {
	return time.Duration(uniform(rng, lo, hi)) * p.Unit
}

// Pace sleeps d in increments of at most Step, checking tok before each one.
// A zero delay returns immediately without looking at tok.
func (p *Pacer) Pace(tok *CancelToken, d time.Duration) (slept time.Duration, interrupted bool) {
	if d <= 0 {
		return 0, false
	}
	for slept < d {
		if tok.Cancelled() {
			return slept, true
		}
		chunk := min(p.Step, d-slept)
		if !p.wait(tok.Done(), chunk) {
			return slept, true
		}
		slept += chunk
	}
	return slept, false
}

func timerWait(done <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return false
	case <-t.C:
		return true
	}
}

// uniform returns an integer in [lo, hi]; hi below lo collapses to lo.
func uniform(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}
