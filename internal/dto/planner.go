package dto

import (
	"time"

	"github.com/noah-isme/sma-activity-planner/internal/models"
)

// IssueTokenRequest asks for an access token for an operator or integration.
type IssueTokenRequest struct {
	UserID   string        `json:"userId" validate:"required"`
	Role     string        `json:"role" validate:"required,oneof=ADMIN PLANNER VIEWER"`
	Email    string        `json:"email,omitempty" validate:"omitempty,email"`
	FullName string        `json:"fullName,omitempty"`
	TTL      time.Duration `json:"-"`
}

// SubmitPlanRequest captures the optional form fields sent next to the
// uploaded workbook.
type SubmitPlanRequest struct {
	TimeLimitSeconds int `form:"timeLimitSeconds" validate:"omitempty,min=1,max=3600"`
}

// PlanRunListQuery filters GET /plans.
type PlanRunListQuery struct {
	Status   string `form:"status" validate:"omitempty,oneof=QUEUED RUNNING FINISHED FAILED"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// PlanRunResponse exposes a run's progress and outcome.
type PlanRunResponse struct {
	ID            string               `json:"id"`
	Status        models.PlanRunStatus `json:"status"`
	SolverStatus  *string              `json:"solverStatus,omitempty"`
	Message       *string              `json:"message,omitempty"`
	Summary       *models.PlanSummary  `json:"summary,omitempty"`
	ResultURL     *string              `json:"resultUrl,omitempty"`
	StatisticsURL *string              `json:"statisticsUrl,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	FinishedAt    *time.Time           `json:"finishedAt,omitempty"`
}

// ScheduleRow is one student's week.
type ScheduleRow struct {
	StudentID  string            `json:"studentId"`
	LastName   string            `json:"lastName"`
	FirstName  string            `json:"firstName"`
	ClassGroup string            `json:"classGroup"`
	Sessions   map[string]string `json:"sessions"`
}

// RosterRow is one activity instance with its participants.
type RosterRow struct {
	InstanceID    string   `json:"instanceId"`
	Code          string   `json:"code"`
	Description   string   `json:"description,omitempty"`
	Owner         string   `json:"owner,omitempty"`
	Location      string   `json:"location,omitempty"`
	Sessions      []string `json:"sessions"`
	MaxCapacity   int      `json:"maxCapacity"`
	IdealCapacity int      `json:"idealCapacity"`
	Deviation     float64  `json:"deviation"`
	Students      []string `json:"students"`
}

// SolveResponse is the synchronous planning result.
type SolveResponse struct {
	Status         string                 `json:"status"`
	Classification string                 `json:"classification"`
	Objective      float64                `json:"objective"`
	Sessions       []string               `json:"sessions"`
	Schedules      []ScheduleRow          `json:"schedules"`
	Rosters        []RosterRow            `json:"rosters"`
	Statistics     []models.PlanStatistic `json:"statistics"`
	Warnings       []string               `json:"warnings,omitempty"`
	Faults         []string               `json:"faults,omitempty"`
}
