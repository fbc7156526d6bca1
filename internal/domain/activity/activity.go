// Package activity defines the append-only event stream and the derived
// drift and coverage records.
package activity

import (
	"encoding/json"
	"time"
)

// EventType enumerates loggable operations.
type EventType string

// Event types recorded by the activity log.
const (
	EventSearch               EventType = "search"
	EventRead                 EventType = "read"
	EventReadChunks           EventType = "read_chunks"
	EventPropose              EventType = "propose"
	EventGenesis              EventType = "genesis"
	EventPatternMatch         EventType = "pattern_match"
	EventPatternInject        EventType = "pattern_inject"
	EventDriftDetected        EventType = "drift_detected"
	EventCoverageScan         EventType = "coverage_scan"
	EventProjectCreate        EventType = "project_create"
	EventProjectUpdate        EventType = "project_update"
	EventProjectDelete        EventType = "project_delete"
	EventAgentRegister        EventType = "agent_register"
	EventAgentUpdate          EventType = "agent_update"
	EventAgentRemove          EventType = "agent_remove"
	EventAgentAssignProject   EventType = "agent_assign_project"
	EventAgentUnassignProject EventType = "agent_unassign_project"
	EventAgentMessageSent     EventType = "agent_message_sent"
	EventAgentInboxRead       EventType = "agent_inbox_read"
	EventReindex              EventType = "reindex"
	EventAgentTaskCreated     EventType = "agent_task_created"
	EventAgentTaskUpdated     EventType = "agent_task_updated"
)

// Event is one append-only activity record.
type Event struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"project_id"`
	UserID         string          `json:"user_id,omitempty"`
	Type           EventType       `json:"event_type"`
	Query          string          `json:"query,omitempty"`
	DocumentID     string          `json:"document_id,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	DriftDetected  bool            `json:"drift_detected,omitempty"`
	ResultCount    *int            `json:"result_count,omitempty"`
	RelevanceScore *float64        `json:"relevance_score,omitempty"`
	ResponseTimeMs *int            `json:"response_time_ms,omitempty"`
	FilePath       string          `json:"file_path,omitempty"`
	Context        json.RawMessage `json:"context,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DriftType classifies a code/documentation discrepancy.
type DriftType string

// Drift types.
const (
	DriftCodeDiverged     DriftType = "code_diverged"
	DriftMissingDoc       DriftType = "missing_doc"
	DriftStaleDoc         DriftType = "stale_doc"
	DriftPatternViolation DriftType = "pattern_violation"
)

// Severity grades a drift event.
type Severity string

// Severities.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DriftEvent records a detected discrepancy between code and
// documentation.
type DriftEvent struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	DocumentID      string     `json:"document_id,omitempty"`
	Severity        Severity   `json:"severity"`
	Type            DriftType  `json:"drift_type"`
	FilePath        string     `json:"file_path"`
	DocPath         string     `json:"doc_path,omitempty"`
	Description     string     `json:"description"`
	ExpectedPattern string     `json:"expected_pattern,omitempty"`
	ActualCode      string     `json:"actual_code,omitempty"`
	Resolved        bool       `json:"resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	DetectedAt      time.Time  `json:"detected_at"`
}

// CoverageSnapshot is one point in the coverage history table.
type CoverageSnapshot struct {
	ID                 string         `json:"id"`
	ProjectID          string         `json:"project_id"`
	TotalDocumentable  int            `json:"total_documentable"`
	TotalDocumented    int            `json:"total_documented"`
	CoveragePercentage float64        `json:"coverage_percentage"`
	Breakdown          map[string]int `json:"breakdown"`
	ScanType           string         `json:"scan_type"`
	CreatedAt          time.Time      `json:"created_at"`
}

// DayStat aggregates one UTC day of search activity.
type DayStat struct {
	Day      time.Time `json:"day"`
	Searches int       `json:"searches"`
	Misses   int       `json:"misses"`
}

// MissedQuery is a normalized query with its zero-result count.
type MissedQuery struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}
