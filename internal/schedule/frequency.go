// Package schedule resolves recurrence configurations into concrete
// occurrence dates.
//
// Each frequency type (daily, weekly, biweekly, monthly, yearly) has its own
// resolver that encapsulates the calendar arithmetic for that frequency.
// Resolvers are pure: the same config and window always produce the same
// ordered set of dates.
package schedule

import (
	"fmt"
	"sort"

	"bilancio/internal/core"
)

// Resolver is the strategy interface for expanding a recurrence config into
// the occurrence dates inside a closed window [start, end].
type Resolver interface {
	Occurrences(cfg core.FrequencyConfig, start, end core.Date) []core.Date
}

// DailyResolver emits every calendar date in the window.
type DailyResolver struct{}

func (DailyResolver) Occurrences(_ core.FrequencyConfig, start, end core.Date) []core.Date {
	var out []core.Date
	for d := start; !d.After(end); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// WeeklyResolver emits dates whose ISO weekday is in the configured set.
// With Alternating set, only every other week counts; parity is anchored at
// the week containing the window start.
type WeeklyResolver struct {
	Alternating bool
}

func (r WeeklyResolver) Occurrences(cfg core.FrequencyConfig, start, end core.Date) []core.Date {
	wanted := make(map[int]bool, len(cfg.Weekdays))
	for _, wd := range cfg.Weekdays {
		wanted[wd] = true
	}

	anchor := startOfISOWeek(start)
	var out []core.Date
	for d := start; !d.After(end); d = d.AddDays(1) {
		if !wanted[d.ISOWeekday()] {
			continue
		}
		if r.Alternating {
			weeks := int(d.Sub(anchor.Time).Hours()) / (24 * 7)
			if weeks%2 != 0 {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

// MonthlyResolver emits the configured days of every month overlapping the
// window. core.LastDayOfMonth resolves to the month's final day, and a day
// beyond the month's length clamps to it (day 31 in February yields the
// 28th or 29th).
type MonthlyResolver struct{}

func (MonthlyResolver) Occurrences(cfg core.FrequencyConfig, start, end core.Date) []core.Date {
	var out []core.Date
	seen := make(map[string]bool)
	for y, m := start.Year(), start.Month(); ; {
		for _, day := range cfg.MonthDays {
			d := resolveMonthDay(y, m, day)
			if d.Before(start) || d.After(end) || seen[d.String()] {
				continue
			}
			seen[d.String()] = true
			out = append(out, d)
		}
		m++
		if m > 12 {
			m = 1
			y++
		}
		if y > end.Year() || (y == end.Year() && m > end.Month()) {
			break
		}
	}
	sortDates(out)
	return out
}

// YearlyResolver emits the cross-product of configured months and month
// days, once per year in the window, with the same day-clamping rule as
// monthly.
type YearlyResolver struct{}

func (YearlyResolver) Occurrences(cfg core.FrequencyConfig, start, end core.Date) []core.Date {
	var out []core.Date
	seen := make(map[string]bool)
	for y := start.Year(); y <= end.Year(); y++ {
		for _, m := range cfg.Months {
			for _, day := range cfg.MonthDays {
				d := resolveMonthDay(y, m, day)
				if d.Before(start) || d.After(end) || seen[d.String()] {
					continue
				}
				seen[d.String()] = true
				out = append(out, d)
			}
		}
	}
	sortDates(out)
	return out
}

// resolvers maps frequency types to their resolver. The registry enables
// O(1) lookup and extension for new frequency types.
var resolvers = map[core.Frequency]Resolver{
	core.Daily:    DailyResolver{},
	core.Weekly:   WeeklyResolver{},
	core.Biweekly: WeeklyResolver{Alternating: true},
	core.Monthly:  MonthlyResolver{},
	core.Yearly:   YearlyResolver{},
}

// GetResolver returns the resolver for a frequency type.
func GetResolver(freq core.Frequency) (Resolver, error) {
	r, ok := resolvers[freq]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", freq)
	}
	return r, nil
}

// RegisterResolver registers a custom resolver for a new frequency type.
func RegisterResolver(freq core.Frequency, r Resolver) {
	resolvers[freq] = r
}

// Occurrences expands a recurrence into its ordered occurrence dates inside
// the closed window [start, end]. The window must be explicit: callers with
// open-ended rules pass their own upper bound (typically "as of today"),
// never an unbounded sequence.
func Occurrences(freq core.Frequency, cfg core.FrequencyConfig, start, end core.Date) ([]core.Date, error) {
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("occurrence window must be bounded")
	}
	if end.Before(start) {
		return nil, nil
	}
	r, err := GetResolver(freq)
	if err != nil {
		return nil, err
	}
	return r.Occurrences(cfg, start, end), nil
}

// startOfISOWeek returns the Monday of the week containing d.
func startOfISOWeek(d core.Date) core.Date {
	return d.AddDays(-(d.ISOWeekday() - 1))
}

func resolveMonthDay(year, month, day int) core.Date {
	last := core.DaysInMonth(year, month)
	if day == core.LastDayOfMonth || day > last {
		day = last
	}
	return core.NewDate(year, month, day)
}

func sortDates(dates []core.Date) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}
