package analytics

import (
	"math"
	"time"
)

// DailyTotals is the usage of a set of keys on one day.
type DailyTotals struct {
	Date             string `json:"date"`
	TotalCalls       int64  `json:"totalCalls"`
	SuccessfulCalls  int64  `json:"successfulCalls"`
	FailedCalls      int64  `json:"failedCalls"`
	RateLimitedCalls int64  `json:"rateLimitedCalls"`
}

// Trend compares today's calls with yesterday's.
type Trend struct {
	Percentage int64  `json:"percentage"`
	Direction  string `json:"direction"` // up, down or stable
}

// Summary folds daily rows into totals and rates (rates are whole percentages).
type Summary struct {
	Days             int           `json:"days"`
	TotalCalls       int64         `json:"totalCalls"`
	SuccessfulCalls  int64         `json:"successfulCalls"`
	FailedCalls      int64         `json:"failedCalls"`
	RateLimitedCalls int64         `json:"rateLimitedCalls"`
	SuccessRate      int64         `json:"successRate"`
	ErrorRate        int64         `json:"errorRate"`
	RateLimitRate    int64         `json:"rateLimitRate"`
	AvgCallsPerDay   int64         `json:"avgCallsPerDay"`
	Daily            []DailyTotals `json:"daily"`
	Trend            Trend         `json:"trend"`
}

// Since returns the first day of a days-long window ending today.
func Since(days int, now time.Time) time.Time {
	if days < 1 {
		days = 1
	}
	return Day(now).AddDate(0, 0, -(days - 1))
}

// Summarize aggregates rows (any keys, any order) over the days-long window ending at now.
// Rows outside the window are ignored.
func Summarize(rows []Counter, days int, now time.Time) Summary {
	if days < 1 {
		days = 1
	}
	since := Since(days, now)

	byDay := make(map[string]*DailyTotals)
	order := make([]string, 0, days)
	for d := since; !d.After(Day(now)); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		byDay[key] = &DailyTotals{Date: key}
		order = append(order, key)
	}

	s := Summary{Days: days}
	for _, row := range rows {
		daily, ok := byDay[DayString(row.Date)]
		if !ok {
			continue
		}
		daily.TotalCalls += row.TotalCalls
		daily.SuccessfulCalls += row.SuccessfulCalls
		daily.FailedCalls += row.FailedCalls
		daily.RateLimitedCalls += row.RateLimitedCalls

		s.TotalCalls += row.TotalCalls
		s.SuccessfulCalls += row.SuccessfulCalls
		s.FailedCalls += row.FailedCalls
		s.RateLimitedCalls += row.RateLimitedCalls
	}

	s.Daily = make([]DailyTotals, 0, len(order))
	for _, key := range order {
		s.Daily = append(s.Daily, *byDay[key])
	}

	s.SuccessRate = percent(s.SuccessfulCalls, s.TotalCalls)
	s.ErrorRate = percent(s.FailedCalls, s.TotalCalls)
	s.RateLimitRate = percent(s.RateLimitedCalls, s.TotalCalls)
	s.AvgCallsPerDay = int64(math.Round(float64(s.TotalCalls) / float64(days)))

	var today, yesterday int64
	if n := len(s.Daily); n > 0 {
		today = s.Daily[n-1].TotalCalls
		if n > 1 {
			yesterday = s.Daily[n-2].TotalCalls
		}
	}
	s.Trend = trend(today, yesterday)
	return s
}

func percent(part, total int64) int64 {
	if total == 0 {
		return 0
	}
	return int64(math.Round(float64(part) / float64(total) * 100))
}

func trend(current, previous int64) Trend {
	if previous == 0 {
		if current > 0 {
			return Trend{Percentage: 100, Direction: "up"}
		}
		return Trend{Percentage: 0, Direction: "stable"}
	}

	pct := int64(math.Round(float64(current-previous) / float64(previous) * 100))
	switch {
	case pct > 0:
		return Trend{Percentage: pct, Direction: "up"}
	case pct < 0:
		return Trend{Percentage: -pct, Direction: "down"}
	default:
		return Trend{Percentage: 0, Direction: "stable"}
	}
}
