package blockqueue

import "time"

// Date is a fractional-sample-accurate timestamp accumulator: repeatedly
// calling Increment with a sample count advances the tracked time by
// exactly that many samples' worth of duration, carrying the rounding
// remainder forward so no drift accumulates over millions of calls the
// way naive "duration = samples * time.Second / rate" arithmetic would.
type Date struct {
	rate        uint32
	date        int64 // nanoseconds
	remainder   uint64
	initialized bool
}

// NewDate creates a Date ticking at the given sample rate. The date is
// uninitialized until the first Set call; callers seeding a timeline from
// their first block's own stamps use Initialized to tell the two states
// apart.
func NewDate(rate uint32) *Date {
	return &Date{rate: rate}
}

// Initialized reports whether Set has anchored the date yet.
func (d *Date) Initialized() bool {
	return d.initialized
}

// SetRate changes the sample rate driving future Increment calls without
// altering the current date; the fractional remainder is reset since it
// was accumulated at the old rate.
func (d *Date) SetRate(rate uint32) {
	d.rate = rate
	d.remainder = 0
}

// Set pins the tracked date to an absolute value, clears the accumulated
// fractional remainder, and marks the date initialized.
func (d *Date) Set(date time.Duration) {
	d.date = int64(date)
	d.remainder = 0
	d.initialized = true
}

// Get returns the currently tracked date.
func (d *Date) Get() time.Duration {
	return time.Duration(d.date)
}

// Move shifts the tracked date by delta without touching the remainder.
func (d *Date) Move(delta time.Duration) {
	d.date += int64(delta)
}

// Increment advances the date by samples worth of duration at the
// configured rate and returns the new date.
func (d *Date) Increment(samples uint32) time.Duration {
	if d.rate == 0 {
		return d.Get()
	}
	total := d.remainder + uint64(samples)*uint64(time.Second)
	d.date += int64(total / uint64(d.rate))
	d.remainder = total % uint64(d.rate)
	return d.Get()
}
