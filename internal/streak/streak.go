// Package streak derives consecutive-day statistics from routine completion events.
package streak

import (
	"sort"
	"time"
)

// DefaultLookbackDays caps how far back the current streak is inspected.
const DefaultLookbackDays = 30

// CompletionEvent records one routine completion for an owner.
type CompletionEvent struct {
	OwnerID    string
	OccurredAt time.Time
}

// Snapshot is the derived streak state for one owner at a reference time.
type Snapshot struct {
	CurrentStreak   int
	BestStreak      int
	DistinctDays    []Day
	LastCompletedAt *time.Time
}

// DayKeys returns the textual keys of the completed days in ascending order.
func (s Snapshot) DayKeys() []string {
	keys := make([]string, 0, len(s.DistinctDays))
	for _, day := range s.DistinctDays {
		keys = append(keys, day.Key())
	}
	return keys
}

// DaysSince returns the completed days on or after from.
func (s Snapshot) DaysSince(from Day) []Day {
	days := make([]Day, 0, len(s.DistinctDays))
	for _, day := range s.DistinctDays {
		if day.Before(from) {
			continue
		}
		days = append(days, day)
	}
	return days
}

// Calculator computes streak snapshots. It holds configuration only and is safe for concurrent use.
type Calculator struct {
	lookbackDays   int
	location       *time.Location
	allowYesterday bool
}

// NewCalculator creates a Calculator with a 30 day window in UTC unless overridden.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		lookbackDays: DefaultLookbackDays,
		location:     time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookbackDays returns the configured current-streak window length.
func (c *Calculator) LookbackDays() int {
	return c.lookbackDays
}

// Location returns the location calendar days are cut in.
func (c *Calculator) Location() *time.Location {
	return c.location
}

// Today returns the calendar day of now, falling back to the current time when now is zero.
func (c *Calculator) Today(now time.Time) Day {
	return DayOf(c.reference(now), c.location)
}

// WindowStart returns midnight of the oldest day the current streak inspects.
// Completions at or after this instant are enough to compute the current streak.
func (c *Calculator) WindowStart(now time.Time) time.Time {
	return c.Today(now).AddDays(-(c.lookbackDays - 1)).Start(c.location)
}

// Compute derives the full snapshot from events relative to now.
func (c *Calculator) Compute(events []CompletionEvent, now time.Time) Snapshot {
	days := c.DistinctDays(events)
	return Snapshot{
		CurrentStreak:   c.currentFromDays(days, now),
		BestStreak:      bestFromDays(days),
		DistinctDays:    days,
		LastCompletedAt: lastCompletedAt(events),
	}
}

// CurrentStreak counts consecutive completed days ending today, bounded by the lookback window.
func (c *Calculator) CurrentStreak(events []CompletionEvent, now time.Time) int {
	return c.currentFromDays(c.DistinctDays(events), now)
}

// BestStreak returns the longest run of consecutive completed days in events.
func (c *Calculator) BestStreak(events []CompletionEvent) int {
	return bestFromDays(c.DistinctDays(events))
}

// DistinctDays returns the unique calendar days with a completion, ascending.
// Events with a zero timestamp are skipped.
func (c *Calculator) DistinctDays(events []CompletionEvent) []Day {
	seen := make(map[Day]struct{}, len(events))
	days := make([]Day, 0, len(events))
	for _, event := range events {
		if event.OccurredAt.IsZero() {
			continue
		}
		day := DayOf(event.OccurredAt, c.location)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Before(days[j])
	})
	return days
}

func (c *Calculator) currentFromDays(days []Day, now time.Time) int {
	if len(days) == 0 {
		return 0
	}
	completed := make(map[Day]struct{}, len(days))
	for _, day := range days {
		completed[day] = struct{}{}
	}

	today := c.Today(now)
	offset := 0
	if _, ok := completed[today]; !ok {
		if !c.allowYesterday {
			return 0
		}
		offset = 1
	}

	count := 0
	for ; offset < c.lookbackDays; offset++ {
		if _, ok := completed[today.AddDays(-offset)]; !ok {
			break
		}
		count++
	}
	return count
}

// bestFromDays expects ascending, de-duplicated days.
func bestFromDays(days []Day) int {
	best := 0
	run := 0
	for index, day := range days {
		if index > 0 && daysBetween(days[index-1], day) == 1 {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

func lastCompletedAt(events []CompletionEvent) *time.Time {
	var latest time.Time
	for _, event := range events {
		if event.OccurredAt.After(latest) {
			latest = event.OccurredAt
		}
	}
	if latest.IsZero() {
		return nil
	}
	latest = latest.UTC()
	return &latest
}

func (c *Calculator) reference(now time.Time) time.Time {
	if now.IsZero() {
		return time.Now().UTC()
	}
	return now
}
