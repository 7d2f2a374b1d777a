// Package analytics aggregates stored feedback for the kiosk summary and the dashboard.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/calendar"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/feedback"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/remote"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRecentLimit = 600
	DefaultDateScan    = 2000
	TVTrendDays        = 10

	columnID        = "id"
	columnRowID     = "row_id"
	columnGrade     = "grau_satisfacao"
	columnDate      = "data"
	columnCreatedAt = "created_at"
)

type Config struct {
	Querier   remote.Querier
	Table     string
	Clock     func() time.Time
	Location  *time.Location
	CacheTTL  time.Duration
	CacheSize int
	Logger    *zap.Logger
}

// Service answers read-only questions about stored feedback. Counts are cached for
// CacheTTL when caching is enabled; row listings always go to the store.
type Service struct {
	querier  remote.Querier
	table    string
	clock    func() time.Time
	location *time.Location
	counts   *expirable.LRU[string, int64]
	logger   *zap.Logger
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Querier == nil {
		return nil, newServiceError(opServiceNew, "missing_querier", errMissingQuerier)
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, newServiceError(opServiceNew, "missing_table", errMissingTable)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &Service{
		querier:  cfg.Querier,
		table:    cfg.Table,
		clock:    clock,
		location: location,
		logger:   logger,
	}
	if cfg.CacheTTL > 0 && cfg.CacheSize > 0 {
		service.counts = expirable.NewLRU[string, int64](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return service, nil
}

// Today returns the current calendar date in the service location.
func (s *Service) Today() string {
	return calendar.FormatDate(s.clock().In(s.location))
}

// PublicSummary counts today's taps per grade plus the all-time total. The last stored
// id is best effort and left empty when it cannot be read.
func (s *Service) PublicSummary(ctx context.Context) (Summary, error) {
	today := s.Today()

	var (
		todayCounts Counts
		total       int64
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		todayCounts, err = s.gradeCounts(groupCtx, remote.Eq(columnDate, today))
		return err
	})
	group.Go(func() error {
		var err error
		total, err = s.count(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		s.logError(opSummary, reasonQuery, err)
		return Summary{}, newServiceError(opSummary, reasonQuery, err)
	}

	summary := Summary{
		Date:       today,
		Today:      todayCounts,
		TodayTotal: todayCounts.Total,
		Total:      total,
	}
	if last, ok, err := s.latest(ctx, columnRowID, columnID); err != nil {
		s.logger.Debug("last feedback id unavailable", zap.Error(err))
	} else if ok {
		summary.LastID = last.DocID()
	}
	return summary, nil
}

// TotalsAllTime counts every stored tap per grade. Total is counted independently of
// the grade filters so rows with unexpected grades still show up in it.
func (s *Service) TotalsAllTime(ctx context.Context) (Counts, error) {
	var (
		counts Counts
		total  int64
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		counts, err = s.gradeCounts(groupCtx)
		return err
	})
	group.Go(func() error {
		var err error
		total, err = s.count(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		s.logError(opTotals, reasonQuery, err)
		return Counts{}, newServiceError(opTotals, reasonQuery, err)
	}
	counts.Total = total
	return counts, nil
}

// TotalsForDay counts taps per grade for one calendar date (YYYY-MM-DD).
func (s *Service) TotalsForDay(ctx context.Context, date string) (Counts, error) {
	if _, err := calendar.ParseDate(date, s.location); err != nil {
		return Counts{}, newServiceError(opTotalsDay, reasonArgument, fmt.Errorf("%w: %v", ErrInvalidDate, err))
	}
	counts, err := s.gradeCounts(ctx, remote.Eq(columnDate, date))
	if err != nil {
		s.logError(opTotalsDay, reasonQuery, err, zap.String("date", date))
		return Counts{}, newServiceError(opTotalsDay, reasonQuery, err)
	}
	return counts, nil
}

// TotalsForRange counts taps created between the start of startDate and the end of
// endDate, optionally restricted to one grade. An empty grade counts every grade.
func (s *Service) TotalsForRange(ctx context.Context, startDate, endDate, grade string) (int64, error) {
	filters, err := s.rangeFilters(startDate, endDate)
	if err != nil {
		return 0, newServiceError(opTotalsRange, reasonArgument, err)
	}
	if strings.TrimSpace(grade) != "" {
		parsed, err := feedback.ParseGrade(grade)
		if err != nil {
			return 0, newServiceError(opTotalsRange, reasonArgument, err)
		}
		filters = append(filters, remote.Eq(columnGrade, parsed.String()))
	}
	total, err := s.count(ctx, filters...)
	if err != nil {
		s.logError(opTotalsRange, reasonQuery, err)
		return 0, newServiceError(opTotalsRange, reasonQuery, err)
	}
	return total, nil
}

// ComparePeriods counts both periods concurrently and reports the variation from the
// first to the second.
func (s *Service) ComparePeriods(ctx context.Context, p1Start, p1End, p2Start, p2End string) (Comparison, error) {
	firstFilters, err := s.rangeFilters(p1Start, p1End)
	if err != nil {
		return Comparison{}, newServiceError(opCompare, reasonArgument, err)
	}
	secondFilters, err := s.rangeFilters(p2Start, p2End)
	if err != nil {
		return Comparison{}, newServiceError(opCompare, reasonArgument, err)
	}

	var comparison Comparison
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		comparison.Period1, err = s.gradeCounts(groupCtx, firstFilters...)
		return err
	})
	group.Go(func() error {
		var err error
		comparison.Period2, err = s.gradeCounts(groupCtx, secondFilters...)
		return err
	})
	if err := group.Wait(); err != nil {
		s.logError(opCompare, reasonQuery, err)
		return Comparison{}, newServiceError(opCompare, reasonQuery, err)
	}

	comparison.Variation = Variation{
		VerySatisfied: pctVariation(comparison.Period1.VerySatisfied, comparison.Period2.VerySatisfied),
		Satisfied:     pctVariation(comparison.Period1.Satisfied, comparison.Period2.Satisfied),
		Unsatisfied:   pctVariation(comparison.Period1.Unsatisfied, comparison.Period2.Unsatisfied),
		Total:         pctVariation(comparison.Period1.Total, comparison.Period2.Total),
	}
	return comparison, nil
}

// RecentFeedback returns the newest rows first. A non-positive limit uses DefaultRecentLimit.
func (s *Service) RecentFeedback(ctx context.Context, limit int) ([]remote.Row, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.querier.Select(ctx, s.table, remote.Query{
		Order: []remote.Order{{Column: columnCreatedAt, Descending: true}},
		Limit: limit,
	})
	if err != nil {
		s.logError(opRecent, reasonQuery, err, zap.Int("limit", limit))
		return nil, newServiceError(opRecent, reasonQuery, err)
	}
	return rows, nil
}

// LastFeedback returns the most recently created row.
func (s *Service) LastFeedback(ctx context.Context) (remote.Row, bool, error) {
	row, ok, err := s.latest(ctx)
	if err != nil {
		s.logError(opLast, reasonQuery, err)
		return remote.Row{}, false, newServiceError(opLast, reasonQuery, err)
	}
	return row, ok, nil
}

// FeedbackByID looks a row up by its server-assigned row id.
func (s *Service) FeedbackByID(ctx context.Context, docID string) (remote.Row, bool, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return remote.Row{}, false, nil
	}
	rows, err := s.querier.Select(ctx, s.table, remote.Query{
		Filters: []remote.Filter{remote.Eq(columnRowID, docID)},
		Limit:   1,
	})
	if err != nil {
		s.logError(opByID, reasonQuery, err, zap.String("doc_id", docID))
		return remote.Row{}, false, newServiceError(opByID, reasonQuery, err)
	}
	if len(rows) == 0 {
		return remote.Row{}, false, nil
	}
	return rows[0], true, nil
}

// AvailableDates returns the distinct dates among the newest maxScan rows, ascending.
func (s *Service) AvailableDates(ctx context.Context, maxScan int) ([]string, error) {
	if maxScan <= 0 {
		maxScan = DefaultDateScan
	}
	rows, err := s.querier.Select(ctx, s.table, remote.Query{
		Columns: []string{columnDate},
		Order:   []remote.Order{{Column: columnCreatedAt, Descending: true}},
		Limit:   maxScan,
	})
	if err != nil {
		s.logError(opDates, reasonQuery, err, zap.Int("max_scan", maxScan))
		return nil, newServiceError(opDates, reasonQuery, err)
	}
	seen := make(map[string]struct{}, len(rows))
	dates := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Date == "" {
			continue
		}
		if _, ok := seen[row.Date]; ok {
			continue
		}
		seen[row.Date] = struct{}{}
		dates = append(dates, row.Date)
	}
	sort.Strings(dates)
	return dates, nil
}

// TVSnapshot gathers the wall display data. The trend is best effort: a failed sample
// leaves it empty rather than failing the snapshot.
func (s *Service) TVSnapshot(ctx context.Context) (TVSnapshot, error) {
	today := s.Today()

	var (
		todayCounts Counts
		totals      Counts
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		todayCounts, err = s.gradeCounts(groupCtx, remote.Eq(columnDate, today))
		return err
	})
	group.Go(func() error {
		var err error
		totals, err = s.TotalsAllTime(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		s.logError(opTV, reasonQuery, err)
		return TVSnapshot{}, newServiceError(opTV, reasonQuery, err)
	}

	snapshot := TVSnapshot{
		Date:       today,
		Today:      todayCounts,
		TodayTotal: todayCounts.Total,
		Total:      totals.Total,
		Trend:      []DayTotal{},
	}
	rows, err := s.RecentFeedback(ctx, DefaultRecentLimit)
	if err != nil {
		s.logger.Warn("tv trend unavailable", zap.Error(err))
		return snapshot, nil
	}
	snapshot.Trend = DailyTrend(rows, TVTrendDays)
	return snapshot, nil
}

// DailyTrend groups rows by their date column and returns the last days dates in
// ascending order. Rows without a date are ignored.
func DailyTrend(rows []remote.Row, days int) []DayTotal {
	byDate := make(map[string]*Counts)
	for _, row := range rows {
		if row.Date == "" {
			continue
		}
		counts, ok := byDate[row.Date]
		if !ok {
			counts = &Counts{}
			byDate[row.Date] = counts
		}
		switch feedback.Grade(row.Grade) {
		case feedback.GradeVerySatisfied:
			counts.VerySatisfied++
		case feedback.GradeSatisfied:
			counts.Satisfied++
		case feedback.GradeUnsatisfied:
			counts.Unsatisfied++
		}
		counts.Total++
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	if days > 0 && len(dates) > days {
		dates = dates[len(dates)-days:]
	}

	trend := make([]DayTotal, 0, len(dates))
	for _, date := range dates {
		trend = append(trend, DayTotal{Date: date, Counts: *byDate[date]})
	}
	return trend
}

// pctVariation is the rounded percentage change from a to b. A zero baseline reports
// 100 for any growth and 0 otherwise. Halves round up.
func pctVariation(a, b int64) int {
	if a == 0 {
		if b == 0 {
			return 0
		}
		return 100
	}
	return int(math.Floor(float64(b-a)/float64(a)*100 + 0.5))
}

// gradeCounts runs one count per grade concurrently on top of the base filters.
func (s *Service) gradeCounts(ctx context.Context, base ...remote.Filter) (Counts, error) {
	grades := feedback.Grades()
	results := make([]int64, len(grades))

	group, groupCtx := errgroup.WithContext(ctx)
	for index, grade := range grades {
		index := index
		filters := append(append([]remote.Filter(nil), base...), remote.Eq(columnGrade, grade.String()))
		group.Go(func() error {
			count, err := s.count(groupCtx, filters...)
			results[index] = count
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return Counts{}, err
	}

	counts := Counts{
		VerySatisfied: results[0],
		Satisfied:     results[1],
		Unsatisfied:   results[2],
	}
	counts.Total = counts.VerySatisfied + counts.Satisfied + counts.Unsatisfied
	return counts, nil
}

func (s *Service) count(ctx context.Context, filters ...remote.Filter) (int64, error) {
	key := cacheKey(s.table, filters)
	if s.counts != nil {
		if cached, ok := s.counts.Get(key); ok {
			return cached, nil
		}
	}
	total, err := s.querier.Count(ctx, s.table, filters)
	if err != nil {
		return 0, err
	}
	if s.counts != nil {
		s.counts.Add(key, total)
	}
	return total, nil
}

// Invalidate drops every cached count.
func (s *Service) Invalidate() {
	if s.counts != nil {
		s.counts.Purge()
	}
}

func (s *Service) latest(ctx context.Context, columns ...string) (remote.Row, bool, error) {
	rows, err := s.querier.Select(ctx, s.table, remote.Query{
		Columns: columns,
		Order:   []remote.Order{{Column: columnCreatedAt, Descending: true}},
		Limit:   1,
	})
	if err != nil {
		return remote.Row{}, false, err
	}
	if len(rows) == 0 {
		return remote.Row{}, false, nil
	}
	return rows[0], true, nil
}

// rangeFilters bounds created_at by the local start of startDate and end of endDate.
func (s *Service) rangeFilters(startDate, endDate string) ([]remote.Filter, error) {
	start, err := calendar.ParseDate(startDate, s.location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	end, err := calendar.ParseDate(endDate, s.location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return []remote.Filter{
		remote.Gte(columnCreatedAt, calendar.FormatISO(calendar.StartOfDay(start))),
		remote.Lte(columnCreatedAt, calendar.FormatISO(calendar.EndOfDay(end))),
	}, nil
}

func cacheKey(table string, filters []remote.Filter) string {
	var builder strings.Builder
	builder.WriteString(table)
	for _, filter := range filters {
		builder.WriteByte('|')
		builder.WriteString(filter.Column)
		builder.WriteByte(' ')
		builder.WriteString(string(filter.Op))
		builder.WriteByte(' ')
		builder.WriteString(filter.Value)
	}
	return builder.String()
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("analytics service error", attrs...)
}
