package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/quothlabs/quoth/internal/domain/activity"
	"github.com/quothlabs/quoth/internal/domain/document"
	"github.com/quothlabs/quoth/internal/port/database"
)

// Staleness levels derived from days since last update.
type Staleness string

// Staleness bands.
const (
	StalenessFresh    Staleness = "fresh"
	StalenessAging    Staleness = "aging"
	StalenessStale    Staleness = "stale"
	StalenessCritical Staleness = "critical"
)

// StalenessOf maps age in days to a band.
func StalenessOf(days int) Staleness {
	switch {
	case days < 14:
		return StalenessFresh
	case days < 30:
		return StalenessAging
	case days < 60:
		return StalenessStale
	default:
		return StalenessCritical
	}
}

// stalenessWeights drive the project health score.
var stalenessWeights = map[Staleness]int{
	StalenessFresh:    100,
	StalenessAging:    70,
	StalenessStale:    30,
	StalenessCritical: 0,
}

// DocHealth is one document's freshness report.
type DocHealth struct {
	FilePath    string    `json:"file_path"`
	Title       string    `json:"title"`
	DaysOld     int       `json:"days_old"`
	Staleness   Staleness `json:"staleness"`
	Suggestion  string    `json:"suggestion,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// HealthReport is the project-level health view.
type HealthReport struct {
	Score     int         `json:"score"`
	Documents []DocHealth `json:"documents"`
}

// MissTrend labels the miss-rate direction over the window.
type MissTrend string

// Miss trends.
const (
	TrendImproving MissTrend = "improving"
	TrendDegrading MissTrend = "degrading"
	TrendStable    MissTrend = "stable"
)

// MissRateReport aggregates search misses over a rolling window.
type MissRateReport struct {
	Days    []DayMissRate `json:"days"`
	Trend   MissTrend     `json:"trend"`
	Overall float64       `json:"overall_miss_rate"`
}

// DayMissRate is one day's miss percentage.
type DayMissRate struct {
	Day      time.Time `json:"day"`
	Searches int       `json:"searches"`
	Misses   int       `json:"misses"`
	Rate     float64   `json:"miss_rate"`
}

// AnalyticsService derives health, coverage, miss-rate, and drift views
// from the activity log and the document store.
type AnalyticsService struct {
	store  database.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewAnalyticsService creates the derived-views service.
func NewAnalyticsService(store database.Store, logger *slog.Logger) *AnalyticsService {
	return &AnalyticsService{store: store, logger: logger, now: time.Now}
}

// Health scores a project's documentation freshness: weighted average
// over documents, fresh=100 aging=70 stale=30 critical=0, rounded.
func (s *AnalyticsService) Health(ctx context.Context, projectID string) (*HealthReport, error) {
	docs, err := s.store.ListDocuments(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	report := &HealthReport{}
	if len(docs) == 0 {
		return report, nil
	}

	now := s.now()
	total := 0
	for _, d := range docs {
		days := int(now.Sub(d.LastUpdated).Hours() / 24)
		level := StalenessOf(days)
		total += stalenessWeights[level]

		dh := DocHealth{
			FilePath:    d.FilePath,
			Title:       d.Title,
			DaysOld:     days,
			Staleness:   level,
			LastUpdated: d.LastUpdated,
		}
		switch level {
		case StalenessAging:
			dh.Suggestion = "review for accuracy"
		case StalenessStale:
			dh.Suggestion = "likely out of date; re-verify against the code"
		case StalenessCritical:
			dh.Suggestion = "rewrite or archive; content is " + strconv.Itoa(days) + " days old"
		}
		report.Documents = append(report.Documents, dh)
	}
	report.Score = int(math.Round(float64(total) / float64(len(docs))))
	return report, nil
}

// MissRate reports per-day (misses/searches)*100 over the last windowDays
// and a trend comparing first-half vs second-half averages.
func (s *AnalyticsService) MissRate(ctx context.Context, projectID string, windowDays int) (*MissRateReport, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	since := s.now().AddDate(0, 0, -windowDays)

	stats, err := s.store.SearchDayStats(ctx, projectID, since)
	if err != nil {
		return nil, fmt.Errorf("day stats: %w", err)
	}

	report := &MissRateReport{Trend: TrendStable}
	totalSearches, totalMisses := 0, 0
	for _, st := range stats {
		rate := 0.0
		if st.Searches > 0 {
			rate = float64(st.Misses) / float64(st.Searches) * 100
		}
		report.Days = append(report.Days, DayMissRate{
			Day: st.Day, Searches: st.Searches, Misses: st.Misses, Rate: rate,
		})
		totalSearches += st.Searches
		totalMisses += st.Misses
	}
	if totalSearches > 0 {
		report.Overall = float64(totalMisses) / float64(totalSearches) * 100
	}

	if n := len(report.Days); n >= 2 {
		first := avgRate(report.Days[:n/2])
		second := avgRate(report.Days[n/2:])
		switch {
		case second < first-5:
			report.Trend = TrendImproving
		case second > first+5:
			report.Trend = TrendDegrading
		}
	}
	return report, nil
}

func avgRate(days []DayMissRate) float64 {
	if len(days) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range days {
		sum += d.Rate
	}
	return sum / float64(len(days))
}

// TopMissedQueries returns the k most frequent zero-result queries over
// the last 30 days.
func (s *AnalyticsService) TopMissedQueries(ctx context.Context, projectID string, k int) ([]activity.MissedQuery, error) {
	if k <= 0 {
		k = 10
	}
	since := s.now().AddDate(0, 0, -30)
	return s.store.TopMissedQueries(ctx, projectID, since, k)
}

// staleDays extracts a day count from a drift description.
var staleDays = regexp.MustCompile(`(\d+)\s*days?`)

// DriftSeverity derives severity from drift type, with stale_doc graded
// by the day count in the description.
func DriftSeverity(driftType activity.DriftType, description string) activity.Severity {
	switch driftType {
	case activity.DriftPatternViolation:
		return activity.SeverityCritical
	case activity.DriftCodeDiverged, activity.DriftMissingDoc:
		return activity.SeverityWarning
	case activity.DriftStaleDoc:
		if m := staleDays.FindStringSubmatch(description); m != nil {
			if days, err := strconv.Atoi(m[1]); err == nil {
				switch {
				case days > 90:
					return activity.SeverityCritical
				case days > 60:
					return activity.SeverityWarning
				}
			}
		}
		return activity.SeverityInfo
	}
	return activity.SeverityInfo
}

// RecordDrift inserts a drift event with derived severity.
func (s *AnalyticsService) RecordDrift(ctx context.Context, d *activity.DriftEvent) error {
	if d.Severity == "" {
		d.Severity = DriftSeverity(d.Type, d.Description)
	}
	return s.store.InsertDriftEvent(ctx, d)
}

// ListDrift returns drift events, optionally unresolved only.
func (s *AnalyticsService) ListDrift(ctx context.Context, projectID string, unresolvedOnly bool) ([]activity.DriftEvent, error) {
	return s.store.ListDriftEvents(ctx, projectID, unresolvedOnly)
}

// ResolveDrift marks a drift event resolved.
func (s *AnalyticsService) ResolveDrift(ctx context.Context, projectID, id, resolvedBy string) error {
	return s.store.ResolveDriftEvent(ctx, projectID, id, resolvedBy)
}

// Coverage counts documents per doc_type, auto-categorizing untyped
// documents by path inference and persisting the fix, then snapshots
// the result. coverage_percentage = docs_with_embeddings / total.
func (s *AnalyticsService) Coverage(ctx context.Context, projectID, scanType string) (*activity.CoverageSnapshot, error) {
	docs, err := s.store.ListDocuments(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	for _, d := range docs {
		if d.DocType != "" {
			continue
		}
		if inferred := document.InferType(d.FilePath); inferred != "" {
			if err := s.store.UpdateDocumentType(ctx, d.ID, inferred); err != nil {
				s.logger.Warn("auto-categorize failed", "document_id", d.ID, "error", err)
			}
		}
	}

	total, withEmbeddings, byType, err := s.store.CoverageCounts(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("coverage counts: %w", err)
	}

	pct := 0.0
	if total > 0 {
		pct = float64(withEmbeddings) / float64(total) * 100
	}
	if scanType == "" {
		scanType = "manual"
	}

	snap := &activity.CoverageSnapshot{
		ProjectID:          projectID,
		TotalDocumentable:  total,
		TotalDocumented:    withEmbeddings,
		CoveragePercentage: pct,
		Breakdown:          byType,
		ScanType:           scanType,
	}
	if err := s.store.InsertCoverageSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("snapshot coverage: %w", err)
	}
	return snap, nil
}
