package gate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const minutesPerDay = 24 * 60

// TimeGate passes when "now" is within Tolerance minutes of a check time in Location.
type TimeGate struct {
	CheckTimes []int // minute of day
	Tolerance  int
	Location   *time.Location
}

// NewTimeGate parses "HH:MM" check times and loads the reporting timezone.
func NewTimeGate(checkTimes []string, toleranceMinutes int, timezone string) (*TimeGate, error) {
	minutes, err := ParseCheckTimes(checkTimes)
	if err != nil {
		return nil, err
	}
	if toleranceMinutes < 0 {
		return nil, fmt.Errorf("tolerance must not be negative: %d", toleranceMinutes)
	}
	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &TimeGate{CheckTimes: minutes, Tolerance: toleranceMinutes, Location: loc}, nil
}

// Allow reports whether now falls inside any check window. Windows wrap
// around midnight, so 23:59 is within 2 minutes of 00:01.
func (g *TimeGate) Allow(now time.Time) bool {
	local := now.In(g.Location)
	mod := local.Hour()*60 + local.Minute()
	for _, ct := range g.CheckTimes {
		d := mod - ct
		if d < 0 {
			d = -d
		}
		if minutesPerDay-d < d {
			d = minutesPerDay - d
		}
		if d <= g.Tolerance {
			return true
		}
	}
	return false
}

// ParseCheckTimes converts "HH:MM" strings into minutes of day.
func ParseCheckTimes(times []string) ([]int, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("no check times configured")
	}
	out := make([]int, 0, len(times))
	for _, t := range times {
		hh, mm, ok := strings.Cut(strings.TrimSpace(t), ":")
		if !ok {
			return nil, fmt.Errorf("check time %q: want HH:MM", t)
		}
		h, err := strconv.Atoi(hh)
		if err != nil || h < 0 || h > 23 {
			return nil, fmt.Errorf("check time %q: bad hour", t)
		}
		m, err := strconv.Atoi(mm)
		if err != nil || m < 0 || m > 59 || len(mm) != 2 {
			return nil, fmt.Errorf("check time %q: bad minute", t)
		}
		out = append(out, h*60+m)
	}
	return out, nil
}

// LoadLocation resolves a timezone name, defaulting to Asia/Seoul.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = "Asia/Seoul"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
