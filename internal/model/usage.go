package model

// UsageSnapshot reports provider call accounting for the current day.
// CallsLeftToday is nil when no daily limit is configured.
type UsageSnapshot struct {
	CallsToday      int         `json:"calls_today"`
	CallsThisHour   int         `json:"calls_this_hour"`
	CallsLeftToday  *int        `json:"calls_left_today"`
	HourlyBreakdown map[int]int `json:"hourly_breakdown,omitempty"`
}
