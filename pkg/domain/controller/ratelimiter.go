package controller

import (
	"errors"
	"fmt"
	"time"

	"github.com/opst/mlcommons/pkg/wire"
)

// TimeUnit is a unit of rate limit, named as java.util.concurrent.TimeUnit does.
type TimeUnit string

const (
	Nanoseconds  TimeUnit = "NANOSECONDS"
	Microseconds TimeUnit = "MICROSECONDS"
	Milliseconds TimeUnit = "MILLISECONDS"
	Seconds      TimeUnit = "SECONDS"
	Minutes      TimeUnit = "MINUTES"
	Hours        TimeUnit = "HOURS"
	Days         TimeUnit = "DAYS"
)

var ErrUnknownTimeUnit = errors.New("unknown time unit")

var durations = map[TimeUnit]time.Duration{
	Nanoseconds:  time.Nanosecond,
	Microseconds: time.Microsecond,
	Milliseconds: time.Millisecond,
	Seconds:      time.Second,
	Minutes:      time.Minute,
	Hours:        time.Hour,
	Days:         24 * time.Hour,
}

func ParseTimeUnit(s string) (TimeUnit, error) {
	u := TimeUnit(s)
	if _, ok := durations[u]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTimeUnit, s)
	}
	return u, nil
}

// Duration is the length of the unit. It is 0 for unknown units.
func (u TimeUnit) Duration() time.Duration {
	return durations[u]
}

// RateLimiter is a rate limit configuration for a user: Number requests per Unit.
//
// Number is kept as text, as it is given.
type RateLimiter struct {
	Number string
	Unit   TimeUnit
}

// IsEmpty tells r is nil or has no fields.
func (r *RateLimiter) IsEmpty() bool {
	return r == nil || (r.Number == "" && r.Unit == "")
}

// IsValid tells r has both of number and unit, so that a limiter can be built.
func (r *RateLimiter) IsValid() bool {
	return r != nil && r.Number != "" && r.Unit != ""
}

func (r *RateLimiter) Equal(other *RateLimiter) bool {
	if r == nil || other == nil {
		return r == nil && other == nil
	}
	return *r == *other
}

// Merge returns a new RateLimiter, whose fields are taken from update when they are set, or from r.
func (r *RateLimiter) Merge(update *RateLimiter) *RateLimiter {
	merged := &RateLimiter{}
	if r != nil {
		*merged = *r
	}
	if update == nil {
		return merged
	}
	if update.Number != "" {
		merged.Number = update.Number
	}
	if update.Unit != "" {
		merged.Unit = update.Unit
	}
	return merged
}

func (r *RateLimiter) WriteTo(out *wire.StreamOutput) error {
	out.WriteOptionalString(r.Number)
	out.WriteOptionalString(string(r.Unit))
	return nil
}

func ReadRateLimiter(in *wire.StreamInput) (*RateLimiter, error) {
	number, err := in.ReadOptionalString()
	if err != nil {
		return nil, err
	}
	unit, err := in.ReadOptionalString()
	if err != nil {
		return nil, err
	}
	r := &RateLimiter{Number: number}
	if unit != "" {
		u, err := ParseTimeUnit(unit)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", wire.ErrMalformed, err)
		}
		r.Unit = u
	}
	return r, nil
}
