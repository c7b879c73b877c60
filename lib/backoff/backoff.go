package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

type Options struct {
	// first-attempt scale in seconds
	Base float64
	// upper bound on the deterministic component, in seconds
	Cap float64
	// how many waits the sequence emits before it is exhausted
	Attempts int
}

func (o Options) validate() error {
	if o.Base <= 0 {
		return fmt.Errorf("backoff: base must be > 0, got %v", o.Base)
	}
	if o.Cap <= 0 {
		return fmt.Errorf("backoff: cap must be > 0, got %v", o.Cap)
	}
	if o.Attempts <= 1 {
		return fmt.Errorf("backoff: attempts must be > 1, got %d", o.Attempts)
	}
	return nil
}

// Sequence emits a finite series of jittered exponential waits,
// one per retry attempt. A fresh Sequence is meant to be created
// per logical request chain.
type Sequence struct {
	opts    Options
	attempt int
}

func New(opts Options) (*Sequence, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Sequence{opts: opts}, nil
}

func clamp(lo, hi, x float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// Next returns the wait for the current attempt and advances the
// sequence. The second return is false once all attempts are spent.
//
// The emitted wait keeps 75% of the clamped exponential term and adds
// up to 25% uniform jitter on top, so retries spread out without ever
// exceeding 1.25x the cap.
func (s *Sequence) Next() (time.Duration, bool) {
	if s.attempt >= s.opts.Attempts {
		return 0, false
	}
	raw := clamp(2, s.opts.Cap, s.opts.Base*math.Pow(2, float64(s.attempt+1)))
	s.attempt++

	seconds := 0.75*raw + rand.Float64()*0.25*raw
	return time.Duration(seconds * float64(time.Second)), true
}
