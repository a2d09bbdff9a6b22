package schedule

import (
	"testing"

	"bilancio/internal/core"
)

func dates(ss ...string) []core.Date {
	out := make([]core.Date, len(ss))
	for i, s := range ss {
		d, err := core.ParseDate(s)
		if err != nil {
			panic(err)
		}
		out[i] = d
	}
	return out
}

func assertDates(t *testing.T, got, want []core.Date) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d dates %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range got {
		if !got[i].Equal(want[i]) {
			t.Errorf("date %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDailyOccurrences(t *testing.T) {
	got, err := Occurrences(core.Daily, core.FrequencyConfig{},
		core.NewDate(2024, 1, 30), core.NewDate(2024, 2, 2))
	if err != nil {
		t.Fatal(err)
	}
	assertDates(t, got, dates("2024-01-30", "2024-01-31", "2024-02-01", "2024-02-02"))
}

func TestWeeklyOccurrencesRespectWeekdaySet(t *testing.T) {
	cfg := core.FrequencyConfig{Weekdays: []int{1, 3}} // Monday, Wednesday
	got, err := Occurrences(core.Weekly, cfg,
		core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 31))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Fatal("no dates generated")
	}
	for i, d := range got {
		if wd := d.ISOWeekday(); wd != 1 && wd != 3 {
			t.Errorf("date %s has weekday %d, want 1 or 3", d, wd)
		}
		if i > 0 {
			gap := int(d.Sub(got[i-1].Time).Hours()) / 24
			if gap <= 0 || gap > 7 {
				t.Errorf("gap between %s and %s is %d days", got[i-1], d, gap)
			}
		}
	}
	// Jan 2024: Mondays 1,8,15,22,29; Wednesdays 3,10,17,24,31.
	if len(got) != 10 {
		t.Errorf("expected 10 dates, got %d", len(got))
	}
}

func TestBiweeklyAlternatesWeeksFromStartAnchor(t *testing.T) {
	cfg := core.FrequencyConfig{Weekdays: []int{5}} // Friday
	got, err := Occurrences(core.Biweekly, cfg,
		core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 29))
	if err != nil {
		t.Fatal(err)
	}
	// Week of Jan 1 is the anchor week: Fridays Jan 5, 19, Feb 2, 16.
	assertDates(t, got, dates("2024-01-05", "2024-01-19", "2024-02-02", "2024-02-16"))
}

func TestBiweeklyAnchorMidWeekStillUsesThatWeek(t *testing.T) {
	cfg := core.FrequencyConfig{Weekdays: []int{1}} // Monday
	// Start on a Thursday. Parity is anchored at that week, so its Monday
	// is already behind the window and the first emission is the Monday
	// two weeks later.
	got, err := Occurrences(core.Biweekly, cfg,
		core.NewDate(2024, 1, 4), core.NewDate(2024, 2, 5))
	if err != nil {
		t.Fatal(err)
	}
	assertDates(t, got, dates("2024-01-15", "2024-01-29"))
}

func TestMonthlyOccurrencesScenario(t *testing.T) {
	// monthly rule on day 1 starting 2024-01-01 queried as of 2024-03-15
	cfg := core.FrequencyConfig{MonthDays: []int{1}}
	got, err := Occurrences(core.Monthly, cfg,
		core.NewDate(2024, 1, 1), core.NewDate(2024, 3, 15))
	if err != nil {
		t.Fatal(err)
	}
	assertDates(t, got, dates("2024-01-01", "2024-02-01", "2024-03-01"))
}

func TestMonthlyLastDaySentinel(t *testing.T) {
	cfg := core.FrequencyConfig{MonthDays: []int{core.LastDayOfMonth}}

	leap, err := Occurrences(core.Monthly, cfg,
		core.NewDate(2024, 2, 1), core.NewDate(2024, 2, 29))
	if err != nil {
		t.Fatal(err)
	}
	assertDates(t, leap, dates("2024-02-29"))

	nonLeap, err := Occurrences(core.Monthly, cfg,
		core.NewDate(2023, 2, 1), core.NewDate(2023, 2, 28))
	if err != nil {
		t.Fatal(err)
	}
	assertDates(t, nonLeap, dates("2023-02-28"))
}

func TestMonthlyDayClampsToMonthLength(t *testing.T) {
	cfg := core.FrequencyConfig{MonthDays: []int{31}}
	got, err := Occurrences(core.Monthly, cfg,
		core.NewDate(2024, 1, 1), core.NewDate(2024, 4, 30))
	if err != nil {
		t.Fatal(err)
	}
	assertDates(t, got, dates("2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"))
}

func TestMonthlyClampedDaysDeduplicate(t *testing.T) {
	// 30 and 31 both clamp to Feb 29 in a leap year; only one emission.
	cfg := core.FrequencyConfig{MonthDays: []int{30, 31}}
	got, err := Occurrences(core.Monthly, cfg,
		core.NewDate(2024, 2, 1), core.NewDate(2024, 2, 29))
	if err != nil {
		t.Fatal(err)
	}
	assertDates(t, got, dates("2024-02-29"))
}

func TestYearlyCrossProduct(t *testing.T) {
	cfg := core.FrequencyConfig{Months: []int{3, 9}, MonthDays: []int{1, 15}}
	got, err := Occurrences(core.Yearly, cfg,
		core.NewDate(2024, 1, 1), core.NewDate(2025, 12, 31))
	if err != nil {
		t.Fatal(err)
	}
	assertDates(t, got, dates(
		"2024-03-01", "2024-03-15", "2024-09-01", "2024-09-15",
		"2025-03-01", "2025-03-15", "2025-09-01", "2025-09-15",
	))
}

func TestYearlyClampsFebruary(t *testing.T) {
	cfg := core.FrequencyConfig{Months: []int{2}, MonthDays: []int{31}}
	got, err := Occurrences(core.Yearly, cfg,
		core.NewDate(2023, 1, 1), core.NewDate(2024, 12, 31))
	if err != nil {
		t.Fatal(err)
	}
	assertDates(t, got, dates("2023-02-28", "2024-02-29"))
}

func TestOccurrencesWindowEdges(t *testing.T) {
	cfg := core.FrequencyConfig{MonthDays: []int{1}}

	// end before start yields nothing
	got, err := Occurrences(core.Monthly, cfg,
		core.NewDate(2024, 3, 1), core.NewDate(2024, 2, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("inverted window produced %v", got)
	}

	// single-day window containing an occurrence
	got, err = Occurrences(core.Monthly, cfg,
		core.NewDate(2024, 3, 1), core.NewDate(2024, 3, 1))
	if err != nil {
		t.Fatal(err)
	}
	assertDates(t, got, dates("2024-03-01"))

	// unbounded window is rejected
	if _, err := Occurrences(core.Monthly, cfg, core.NewDate(2024, 1, 1), core.Date{}); err == nil {
		t.Error("unbounded window accepted")
	}
}

func TestOccurrencesUnknownFrequency(t *testing.T) {
	if _, err := Occurrences(core.Frequency("hourly"), core.FrequencyConfig{},
		core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 2)); err == nil {
		t.Error("unknown frequency accepted")
	}
}

func TestRegisterResolver(t *testing.T) {
	freq := core.Frequency("quarterly")
	RegisterResolver(freq, MonthlyResolver{})
	defer delete(resolvers, freq)

	if _, err := GetResolver(freq); err != nil {
		t.Errorf("GetResolver after register: %v", err)
	}
}
