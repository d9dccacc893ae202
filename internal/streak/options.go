package streak

import "time"

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithLookbackDays bounds how many calendar days the current streak inspects.
func WithLookbackDays(days int) Option {
	return func(c *Calculator) {
		if days > 0 {
			c.lookbackDays = days
		}
	}
}

// WithLocation sets the location used to cut timestamps into calendar days.
func WithLocation(location *time.Location) Option {
	return func(c *Calculator) {
		if location != nil {
			c.location = location
		}
	}
}

// WithYesterdayAnchor lets the current streak start at yesterday while today has no completion yet.
func WithYesterdayAnchor(enabled bool) Option {
	return func(c *Calculator) {
		c.allowYesterday = enabled
	}
}
