package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/activity"
)

func (s *Store) InsertActivityEvent(ctx context.Context, e *activity.Event) error {
	eventCtx := e.Context
	if eventCtx == nil {
		eventCtx = []byte(`{}`)
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO activity_log (project_id, user_id, event_type, query, document_id, tool_name, drift_detected, result_count, relevance_score, response_time_ms, file_path, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`,
		e.ProjectID, e.UserID, e.Type, e.Query, e.DocumentID, e.ToolName,
		e.DriftDetected, e.ResultCount, e.RelevanceScore, e.ResponseTimeMs,
		e.FilePath, eventCtx,
	).Scan(&e.ID, &e.CreatedAt)
	return mapErr("insert activity event", err)
}

// SearchDayStats aggregates searches and zero-result misses per UTC day.
func (s *Store) SearchDayStats(ctx context.Context, projectID string, since time.Time) ([]activity.DayStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
		       count(*),
		       count(*) FILTER (WHERE result_count = 0)
		FROM activity_log
		WHERE project_id = $1 AND event_type = 'search' AND created_at >= $2
		GROUP BY 1
		ORDER BY 1`,
		projectID, since)
	if err != nil {
		return nil, mapErr("search day stats", err)
	}
	defer rows.Close()

	var out []activity.DayStat
	for rows.Next() {
		var d activity.DayStat
		if err := rows.Scan(&d.Day, &d.Searches, &d.Misses); err != nil {
			return nil, mapErr("scan day stat", err)
		}
		out = append(out, d)
	}
	return out, mapErr("search day stats", rows.Err())
}

// TopMissedQueries returns the k most frequent zero-result queries,
// lowercased and trimmed.
func (s *Store) TopMissedQueries(ctx context.Context, projectID string, since time.Time, k int) ([]activity.MissedQuery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT lower(trim(query)), count(*)
		FROM activity_log
		WHERE project_id = $1 AND event_type = 'search' AND result_count = 0
		  AND query <> '' AND created_at >= $2
		GROUP BY 1
		ORDER BY 2 DESC, 1
		LIMIT $3`,
		projectID, since, k)
	if err != nil {
		return nil, mapErr("top missed queries", err)
	}
	defer rows.Close()

	var out []activity.MissedQuery
	for rows.Next() {
		var m activity.MissedQuery
		if err := rows.Scan(&m.Query, &m.Count); err != nil {
			return nil, mapErr("scan missed query", err)
		}
		out = append(out, m)
	}
	return out, mapErr("top missed queries", rows.Err())
}

func (s *Store) InsertDriftEvent(ctx context.Context, d *activity.DriftEvent) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO drift_events (project_id, document_id, severity, drift_type, file_path, doc_path, description, expected_pattern, actual_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, detected_at`,
		d.ProjectID, d.DocumentID, d.Severity, d.Type, d.FilePath, d.DocPath,
		d.Description, d.ExpectedPattern, d.ActualCode,
	).Scan(&d.ID, &d.DetectedAt)
	return mapErr("insert drift event", err)
}

func (s *Store) ListDriftEvents(ctx context.Context, projectID string, unresolvedOnly bool) ([]activity.DriftEvent, error) {
	query := `
		SELECT id, project_id, document_id, severity, drift_type, file_path, doc_path,
		       description, expected_pattern, actual_code, resolved, resolved_at, resolved_by, detected_at
		FROM drift_events
		WHERE project_id = $1`
	if unresolvedOnly {
		query += ` AND NOT resolved`
	}
	query += ` ORDER BY detected_at DESC`

	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, mapErr("list drift events", err)
	}
	defer rows.Close()

	var out []activity.DriftEvent
	for rows.Next() {
		var d activity.DriftEvent
		err := rows.Scan(&d.ID, &d.ProjectID, &d.DocumentID, &d.Severity, &d.Type,
			&d.FilePath, &d.DocPath, &d.Description, &d.ExpectedPattern, &d.ActualCode,
			&d.Resolved, &d.ResolvedAt, &d.ResolvedBy, &d.DetectedAt)
		if err != nil {
			return nil, mapErr("scan drift event", err)
		}
		out = append(out, d)
	}
	return out, mapErr("list drift events", rows.Err())
}

func (s *Store) ResolveDriftEvent(ctx context.Context, projectID, id, resolvedBy string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE drift_events SET resolved = true, resolved_at = now(), resolved_by = $3
		WHERE project_id = $1 AND id = $2 AND NOT resolved`,
		projectID, id, resolvedBy)
	if err != nil {
		return mapErr("resolve drift event", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("resolve drift event: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *Store) InsertCoverageSnapshot(ctx context.Context, snap *activity.CoverageSnapshot) error {
	breakdown, err := json.Marshal(snap.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal coverage breakdown: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO coverage_snapshots (project_id, total_documentable, total_documented, coverage_percentage, breakdown, scan_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		snap.ProjectID, snap.TotalDocumentable, snap.TotalDocumented,
		snap.CoveragePercentage, breakdown, snap.ScanType,
	).Scan(&snap.ID, &snap.CreatedAt)
	return mapErr("insert coverage snapshot", err)
}
