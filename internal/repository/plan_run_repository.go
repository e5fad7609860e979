package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-activity-planner/internal/models"
)

const planRunColumns = `id, status, solver_status, message, summary, time_limit_seconds, upload_path, result_path, result_url, created_by, created_at, finished_at`

// PlanRunRepository persists plan run metadata.
type PlanRunRepository struct {
	db *sqlx.DB
}

// NewPlanRunRepository constructs the repository.
func NewPlanRunRepository(db *sqlx.DB) *PlanRunRepository {
	return &PlanRunRepository{db: db}
}

// Create inserts a new plan run row with generated defaults.
func (r *PlanRunRepository) Create(ctx context.Context, run *models.PlanRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.PlanRunStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO plan_runs (id, status, solver_status, message, summary, time_limit_seconds, upload_path, result_path, result_url, created_by, created_at, finished_at)
VALUES (:id, :status, :solver_status, :message, :summary, :time_limit_seconds, :upload_path, :result_path, :result_url, :created_by, :created_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create plan run: %w", err)
	}
	return nil
}

// GetByID returns a run by its identifier.
func (r *PlanRunRepository) GetByID(ctx context.Context, id string) (*models.PlanRun, error) {
	query := `SELECT ` + planRunColumns + ` FROM plan_runs WHERE id = $1`
	var run models.PlanRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get plan run: %w", err)
	}
	return &run, nil
}

// UpdatePlanRunParams defines the mutable fields.
type UpdatePlanRunParams struct {
	Status       *models.PlanRunStatus
	SolverStatus *string
	Message      *string
	Summary      *models.PlanSummary
	ResultPath   *string
	ResultURL    *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a run row.
func (r *PlanRunRepository) Update(ctx context.Context, id string, params UpdatePlanRunParams) error {
	set := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.SolverStatus != nil {
		add("solver_status", *params.SolverStatus)
	}
	if params.Message != nil {
		add("message", *params.Message)
	}
	if params.Summary != nil {
		add("summary", *params.Summary)
	}
	if params.ResultPath != nil {
		add("result_path", *params.ResultPath)
	}
	if params.ResultURL != nil {
		add("result_url", *params.ResultURL)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE plan_runs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update plan run: %w", err)
	}
	return nil
}

// List returns runs matching the filter, newest first, with the total count.
func (r *PlanRunRepository) List(ctx context.Context, filter models.PlanRunFilter) ([]models.PlanRun, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM plan_runs %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, planRunColumns, where, size, (page-1)*size)
	var runs []models.PlanRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list plan runs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM plan_runs "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count plan runs: %w", err)
	}
	return runs, total, nil
}

// ListQueued fetches queued runs, oldest first, for cold start recovery.
func (r *PlanRunRepository) ListQueued(ctx context.Context, limit int) ([]models.PlanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + planRunColumns + ` FROM plan_runs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var runs []models.PlanRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued plan runs: %w", err)
	}
	return runs, nil
}

// ListFinishedBefore retrieves completed runs prior to cutoff for cleanup.
func (r *PlanRunRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PlanRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + planRunColumns + ` FROM plan_runs WHERE status = 'FINISHED' AND result_path IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2`
	var runs []models.PlanRun
	if err := r.db.SelectContext(ctx, &runs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished plan runs: %w", err)
	}
	return runs, nil
}

// ClearResult forgets the stored result of an expired run.
func (r *PlanRunRepository) ClearResult(ctx context.Context, id string) error {
	const query = `UPDATE plan_runs SET result_path = NULL, result_url = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clear plan run result: %w", err)
	}
	return nil
}
