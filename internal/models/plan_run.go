package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PlanRunStatus captures the background lifecycle of a plan run.
type PlanRunStatus string

const (
	PlanRunStatusQueued   PlanRunStatus = "QUEUED"
	PlanRunStatusRunning  PlanRunStatus = "RUNNING"
	PlanRunStatusFinished PlanRunStatus = "FINISHED"
	PlanRunStatusFailed   PlanRunStatus = "FAILED"
)

// Done reports whether the run reached a terminal state.
func (s PlanRunStatus) Done() bool {
	return s == PlanRunStatusFinished || s == PlanRunStatusFailed
}

// PlanRun persisted plan job metadata.
type PlanRun struct {
	ID               string        `db:"id" json:"id"`
	Status           PlanRunStatus `db:"status" json:"status"`
	SolverStatus     *string       `db:"solver_status" json:"solver_status,omitempty"`
	Message          *string       `db:"message" json:"message,omitempty"`
	Summary          PlanSummary   `db:"summary" json:"summary"`
	TimeLimitSeconds int           `db:"time_limit_seconds" json:"time_limit_seconds"`
	UploadPath       string        `db:"upload_path" json:"-"`
	ResultPath       *string       `db:"result_path" json:"-"`
	ResultURL        *string       `db:"result_url" json:"result_url,omitempty"`
	CreatedBy        string        `db:"created_by" json:"created_by"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	FinishedAt       *time.Time    `db:"finished_at" json:"finished_at,omitempty"`
}

// PlanStatistic is one labelled line of the statistics table.
type PlanStatistic struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// PlanSummary is the compact outcome of a run, persisted as JSONB.
type PlanSummary struct {
	Objective      *float64        `json:"objective,omitempty"`
	Classification string          `json:"classification,omitempty"`
	Students       int             `json:"students"`
	Instances      int             `json:"instances"`
	Warnings       []string        `json:"warnings,omitempty"`
	Faults         []string        `json:"faults,omitempty"`
	Statistics     []PlanStatistic `json:"statistics,omitempty"`
}

// Value marshals the summary to JSON for persistence.
func (s PlanSummary) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal plan summary: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the summary.
func (s *PlanSummary) Scan(value interface{}) error {
	if value == nil {
		*s = PlanSummary{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for PlanSummary", value)
	}
	if len(data) == 0 {
		*s = PlanSummary{}
		return nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("unmarshal plan summary: %w", err)
	}
	return nil
}

// PlanRunFilter narrows the run listing.
type PlanRunFilter struct {
	Status    PlanRunStatus
	CreatedBy string
	Page      int
	PageSize  int
}
