package analytics

// Counts holds per-grade totals. JSON keys follow the remote column values.
type Counts struct {
	VerySatisfied int64 `json:"muito_satisfeito"`
	Satisfied     int64 `json:"satisfeito"`
	Unsatisfied   int64 `json:"insatisfeito"`
	Total         int64 `json:"total"`
}

// Summary is the public snapshot shown under the kiosk buttons.
type Summary struct {
	Date       string `json:"date"`
	Today      Counts `json:"today"`
	TodayTotal int64  `json:"todayTotal"`
	Total      int64  `json:"total"`
	LastID     string `json:"lastId,omitempty"`
}

// Variation is the percentage change per grade between two periods.
type Variation struct {
	VerySatisfied int `json:"muito_satisfeito"`
	Satisfied     int `json:"satisfeito"`
	Unsatisfied   int `json:"insatisfeito"`
	Total         int `json:"total"`
}

type Comparison struct {
	Period1   Counts    `json:"periodo1"`
	Period2   Counts    `json:"periodo2"`
	Variation Variation `json:"variacao"`
}

// DayTotal is one point of a daily trend.
type DayTotal struct {
	Date   string `json:"date"`
	Counts Counts `json:"counts"`
}

// TVSnapshot feeds the wall display: today's KPIs, the all-time total and a short trend.
type TVSnapshot struct {
	Date       string     `json:"date"`
	Today      Counts     `json:"today"`
	TodayTotal int64      `json:"todayTotal"`
	Total      int64      `json:"total"`
	Trend      []DayTotal `json:"trend"`
}
