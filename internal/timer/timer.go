// Package timer computes the delay until the next beep. It performs no I/O:
// every historical input arrives through Stats and randomness through Rand.
package timer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Strategy string

const (
	Fixed          Strategy = "fixed"
	RandomInterval Strategy = "random_interval"
	RandomAverage  Strategy = "random_average"
)

// Config is an immutable timer profile.
type Config struct {
	Strategy Strategy
	MinDelay time.Duration
	MaxDelay time.Duration
	// AvgDelay is the target mean for RandomAverage and the interval for Fixed.
	AvgDelay time.Duration

	// UptimeSamplesForAverage is the number of uptime sessions today before
	// the average session length starts capping the target mean. 0 disables it.
	UptimeSamplesForAverage int
	// CancelledBeepsForAverage is the number of consecutive cancelled beeps
	// after which the target mean reaches MinDelay. 0 disables it.
	CancelledBeepsForAverage int
	// MinIntervalSize is the narrowest window RandomAverage draws from.
	MinIntervalSize time.Duration
}

// Validate rejects profiles that could yield a non-positive delay.
func (c Config) Validate() error {
	var errs []string
	switch c.Strategy {
	case Fixed:
		if c.AvgDelay <= 0 {
			errs = append(errs, "fixed strategy requires a positive average delay")
		}
	case RandomInterval, RandomAverage:
		if c.MinDelay <= 0 {
			errs = append(errs, "min delay must be positive")
		}
		if c.MaxDelay < c.MinDelay {
			errs = append(errs, "max delay must not be below min delay")
		}
		if c.Strategy == RandomAverage && (c.AvgDelay < c.MinDelay || c.AvgDelay > c.MaxDelay) {
			errs = append(errs, "average delay must lie within [min, max]")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown strategy %q", c.Strategy))
	}
	if c.UptimeSamplesForAverage < 0 {
		errs = append(errs, "uptime samples must not be negative")
	}
	if c.CancelledBeepsForAverage < 0 {
		errs = append(errs, "cancelled beeps must not be negative")
	}
	if c.MinIntervalSize < 0 {
		errs = append(errs, "min interval size must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("timer: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Stats is the history a strategy may take into account.
type Stats struct {
	AcceptedToday        int
	UptimeTotal          time.Duration
	UptimeCount          int
	UptimeAverage        time.Duration
	ConsecutiveCancelled int
}

// Rand is satisfied by *math/rand.Rand.
type Rand interface {
	Int63n(n int64) int64
}

type Timer interface {
	NextDelay(stats Stats) time.Duration
}

// New validates cfg and returns the timer for its strategy.
func New(cfg Config, rnd Rand) (Timer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rnd == nil && cfg.Strategy != Fixed {
		return nil, errors.New("timer: random strategies need a random source")
	}
	switch cfg.Strategy {
	case Fixed:
		return fixedTimer{delay: cfg.AvgDelay}, nil
	case RandomInterval:
		return intervalTimer{min: cfg.MinDelay, max: cfg.MaxDelay, rnd: rnd}, nil
	default:
		return averageTimer{cfg: cfg, rnd: rnd}, nil
	}
}

// ErrNoPositiveDelay is returned by Next when a timer keeps producing
// non-positive delays.
var ErrNoPositiveDelay = errors.New("timer: no positive delay produced")

// Next draws from t until it yields a positive delay, giving up after
// attempts draws.
func Next(t Timer, stats Stats, attempts int) (time.Duration, error) {
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if d := t.NextDelay(stats); d > 0 {
			return d, nil
		}
	}
	return 0, ErrNoPositiveDelay
}

type fixedTimer struct {
	delay time.Duration
}

func (t fixedTimer) NextDelay(Stats) time.Duration {
	return t.delay
}

type intervalTimer struct {
	min, max time.Duration
	rnd      Rand
}

func (t intervalTimer) NextDelay(Stats) time.Duration {
	return uniform(t.rnd, t.min, t.max)
}

type averageTimer struct {
	cfg Config
	rnd Rand
}

func (t averageTimer) NextDelay(stats Stats) time.Duration {
	c := t.cfg
	target := c.AvgDelay

	// Each consecutive cancelled beep moves the target one step toward
	// MinDelay so that an unresponsive user is asked again sooner.
	if c.CancelledBeepsForAverage > 0 && stats.ConsecutiveCancelled > 0 {
		n := stats.ConsecutiveCancelled
		if n > c.CancelledBeepsForAverage {
			n = c.CancelledBeepsForAverage
		}
		step := (target - c.MinDelay) / time.Duration(c.CancelledBeepsForAverage)
		target -= step * time.Duration(n)
	}

	if c.UptimeSamplesForAverage > 0 &&
		stats.UptimeCount >= c.UptimeSamplesForAverage &&
		stats.UptimeAverage > 0 &&
		stats.UptimeAverage < target {
		target = stats.UptimeAverage
	}
	target = clamp(target, c.MinDelay, c.MaxDelay)

	half := target - c.MinDelay
	if upper := c.MaxDelay - target; upper < half {
		half = upper
	}
	if 2*half < c.MinIntervalSize {
		half = c.MinIntervalSize / 2
	}
	lo := clamp(target-half, c.MinDelay, c.MaxDelay)
	hi := clamp(target+half, c.MinDelay, c.MaxDelay)
	return uniform(t.rnd, lo, hi)
}

// uniform returns a millisecond-granular value in [lo, hi].
func uniform(rnd Rand, lo, hi time.Duration) time.Duration {
	span := (hi - lo).Milliseconds()
	if span <= 0 {
		return lo
	}
	return lo + time.Duration(rnd.Int63n(span+1))*time.Millisecond
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
