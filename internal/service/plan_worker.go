package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-activity-planner/internal/models"
	"github.com/noah-isme/sma-activity-planner/internal/planner"
	"github.com/noah-isme/sma-activity-planner/internal/repository"
	"github.com/noah-isme/sma-activity-planner/pkg/jobs"
)

// PlanWorker bridges queue jobs to the planner.
type PlanWorker struct {
	repo       planRunStore
	planner    *planner.Planner
	exporter   *ExportService
	cache      *CacheService
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
}

// NewPlanWorker constructs a worker.
func NewPlanWorker(repo planRunStore, p *planner.Planner, exporter *ExportService, cache *CacheService, metrics *MetricsService, maxRetries int, logger *zap.Logger) *PlanWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &PlanWorker{
		repo:       repo,
		planner:    p,
		exporter:   exporter,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes one queued run. Runs already in a terminal state are
// skipped so replays after a restart are harmless. Input problems fail the
// run immediately; storage problems are retried.
func (w *PlanWorker) Handle(ctx context.Context, job jobs.Job) error {
	run, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if run.Status.Done() {
		return nil
	}
	running := models.PlanRunStatusRunning
	if err := w.repo.Update(ctx, run.ID, repository.UpdatePlanRunParams{Status: &running}); err != nil {
		return err
	}

	activities, preferences, err := w.exporter.OpenUpload(run.UploadPath)
	if err != nil {
		return w.fail(ctx, run, job, fmt.Errorf("load upload: %w", err), false)
	}
	p := w.planner.WithTimeLimit(time.Duration(run.TimeLimitSeconds) * time.Second)
	outcome, err := p.Run(ctx, activities, preferences)
	observeOutcome(w.logger, w.metrics, "async", run.ID, outcome, err)
	if err != nil {
		permanent := !errors.Is(err, context.Canceled)
		return w.fail(ctx, run, job, mapPlannerError(err), permanent)
	}

	res := outcome.Result
	summary := summarize(outcome)
	solverStatus := string(res.Status)
	params := repository.UpdatePlanRunParams{SolverStatus: &solverStatus, Summary: &summary}
	if res.Optimal() {
		stored, err := w.exporter.Store(run.ID, res)
		if err != nil {
			return w.fail(ctx, run, job, fmt.Errorf("store result: %w", err), false)
		}
		params.ResultPath = &stored.WorkbookPath
		params.ResultURL = &stored.URL
	} else {
		msg := res.Classification
		params.Message = &msg
	}
	return w.finish(ctx, run, models.PlanRunStatusFinished, params)
}

// fail records a failed attempt. Permanent failures and the last retry mark
// the run FAILED; earlier attempts put it back to QUEUED.
func (w *PlanWorker) fail(ctx context.Context, run *models.PlanRun, job jobs.Job, cause error, permanent bool) error {
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()
	if permanent || job.Attempt >= w.maxRetries {
		if err := w.finish(ctx, run, models.PlanRunStatusFailed, repository.UpdatePlanRunParams{Message: &msg}); err != nil {
			w.logger.Sugar().Warnw("failed to mark run failed", "run_id", run.ID, "error", err)
		}
		if permanent {
			return fmt.Errorf("%w: %v", jobs.ErrPermanent, cause)
		}
		return cause
	}
	queued := models.PlanRunStatusQueued
	if err := w.repo.Update(ctx, run.ID, repository.UpdatePlanRunParams{Status: &queued, Message: &msg}); err != nil {
		w.logger.Sugar().Warnw("failed to mark run queued", "run_id", run.ID, "error", err)
	}
	return cause
}

// finish records the terminal state. It outlives the job deadline: a solve
// that used its whole budget must still be written back.
func (w *PlanWorker) finish(ctx context.Context, run *models.PlanRun, status models.PlanRunStatus, params repository.UpdatePlanRunParams) error {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	params.Status = &status
	params.FinishedAt = &now
	if err := w.repo.Update(ctx, run.ID, params); err != nil {
		w.logger.Sugar().Warnw("failed to finish run", "run_id", run.ID, "status", status, "error", err)
		return err
	}
	if err := w.exporter.Delete(run.UploadPath); err != nil {
		w.logger.Sugar().Warnw("failed to delete upload", "run_id", run.ID, "error", err)
	}
	if done, err := w.repo.GetByID(ctx, run.ID); err == nil {
		w.cache.PutPlanRun(ctx, done)
	}
	w.logger.Info("plan run finished", zap.String("run_id", run.ID), zap.String("status", string(status)))
	return nil
}
