package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type BlackoutPolicy string

const (
	// BlackoutDisablePricing makes the rule inapplicable on blackout dates.
	BlackoutDisablePricing BlackoutPolicy = "DISABLE_PRICING"
	// BlackoutDefaultPrice applies DefaultPrice on blackout dates.
	BlackoutDefaultPrice BlackoutPolicy = "USE_DEFAULT_PRICE"
)

// TimeWindow restricts a rule to a time-of-day range on given weekdays, minus
// blackout dates. StartTime after EndTime wraps past midnight.
type TimeWindow struct {
	StartTime      string           `json:"startTime,omitempty" yaml:"startTime,omitempty"`
	EndTime        string           `json:"endTime,omitempty" yaml:"endTime,omitempty"`
	Days           []string         `json:"days,omitempty" yaml:"days,omitempty"`
	BlackoutDates  []string         `json:"blackoutDates,omitempty" yaml:"blackoutDates,omitempty"`
	BlackoutPolicy BlackoutPolicy   `json:"blackoutPolicy,omitempty" yaml:"blackoutPolicy,omitempty"`
	DefaultPrice   *decimal.Decimal `json:"defaultPrice,omitempty" yaml:"defaultPrice,omitempty"`
	Location       string           `json:"location,omitempty" yaml:"location,omitempty"`
}

// windowOutcome is the result of checking one window.
type windowOutcome struct {
	open         bool
	blackout     bool
	defaultPrice *decimal.Decimal
}

func (w TimeWindow) check(at time.Time) (windowOutcome, error) {
	loc := time.UTC
	if w.Location != "" {
		l, err := time.LoadLocation(w.Location)
		if err != nil {
			return windowOutcome{}, fmt.Errorf("unknown location %q", w.Location)
		}
		loc = l
	}
	local := at.In(loc)

	today := local.Format("2006-01-02")
	for _, d := range w.BlackoutDates {
		bd, err := time.Parse("2006-01-02", strings.TrimSpace(d))
		if err != nil {
			return windowOutcome{}, fmt.Errorf("invalid blackout date %q", d)
		}
		if bd.Format("2006-01-02") != today {
			continue
		}
		switch w.BlackoutPolicy {
		case "", BlackoutDisablePricing:
			return windowOutcome{blackout: true}, nil
		case BlackoutDefaultPrice:
			if w.DefaultPrice == nil {
				return windowOutcome{}, fmt.Errorf("blackout policy %s requires defaultPrice", BlackoutDefaultPrice)
			}
			return windowOutcome{blackout: true, defaultPrice: w.DefaultPrice}, nil
		default:
			return windowOutcome{}, fmt.Errorf("unknown blackout policy %q", w.BlackoutPolicy)
		}
	}

	if len(w.Days) > 0 {
		ok, err := matchesWeekday(w.Days, local.Weekday())
		if err != nil {
			return windowOutcome{}, err
		}
		if !ok {
			return windowOutcome{}, nil
		}
	}

	if w.StartTime == "" && w.EndTime == "" {
		return windowOutcome{open: true}, nil
	}
	start, err := minuteOfDay(w.StartTime, 0)
	if err != nil {
		return windowOutcome{}, err
	}
	end, err := minuteOfDay(w.EndTime, 24*60)
	if err != nil {
		return windowOutcome{}, err
	}
	now := local.Hour()*60 + local.Minute()
	if start <= end {
		return windowOutcome{open: now >= start && now < end}, nil
	}
	return windowOutcome{open: now >= start || now < end}, nil
}

func minuteOfDay(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

var weekdays = map[string]time.Weekday{
	"SUNDAY": time.Sunday, "MONDAY": time.Monday, "TUESDAY": time.Tuesday,
	"WEDNESDAY": time.Wednesday, "THURSDAY": time.Thursday, "FRIDAY": time.Friday,
	"SATURDAY": time.Saturday,
	"SUN": time.Sunday, "MON": time.Monday, "TUE": time.Tuesday, "WED": time.Wednesday,
	"THU": time.Thursday, "FRI": time.Friday, "SAT": time.Saturday,
}

func matchesWeekday(days []string, wd time.Weekday) (bool, error) {
	for _, d := range days {
		day, ok := weekdays[strings.ToUpper(strings.TrimSpace(d))]
		if !ok {
			return false, fmt.Errorf("unknown day of week %q", d)
		}
		if day == wd {
			return true, nil
		}
	}
	return false, nil
}
