package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-activity-planner/internal/dto"
	"github.com/noah-isme/sma-activity-planner/internal/models"
	"github.com/noah-isme/sma-activity-planner/internal/planner"
	"github.com/noah-isme/sma-activity-planner/internal/repository"
	"github.com/noah-isme/sma-activity-planner/pkg/config"
	appErrors "github.com/noah-isme/sma-activity-planner/pkg/errors"
	"github.com/noah-isme/sma-activity-planner/pkg/export"
	"github.com/noah-isme/sma-activity-planner/pkg/jobs"
	"github.com/noah-isme/sma-activity-planner/pkg/middleware/requestid"
	"github.com/noah-isme/sma-activity-planner/pkg/milp"
)

// JobTypePlan labels plan runs on the job queue.
const JobTypePlan = "plan"

// maxSummaryWarnings caps the warnings persisted with a run.
const maxSummaryWarnings = 50

const jobOverhead = time.Minute

type planRunStore interface {
	Create(ctx context.Context, run *models.PlanRun) error
	GetByID(ctx context.Context, id string) (*models.PlanRun, error)
	Update(ctx context.Context, id string, params repository.UpdatePlanRunParams) error
	List(ctx context.Context, filter models.PlanRunFilter) ([]models.PlanRun, int, error)
	ListQueued(ctx context.Context, limit int) ([]models.PlanRun, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PlanRun, error)
	ClearResult(ctx context.Context, id string) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// PlannerOptions turns configuration into planner run parameters.
func PlannerOptions(p config.PlannerConfig, s config.SolverConfig) planner.Options {
	opts := planner.DefaultOptions()
	if len(p.Sessions) > 0 {
		opts.Sessions = append([]string(nil), p.Sessions...)
	}
	opts.PrefReward = p.PrefReward
	opts.VetoPenalty = p.VetoPenalty
	opts.DeviationWeight = p.DeviationWeight
	opts.ExtraNeutralPenalty = p.ExtraNeutralPenalty
	opts.HardVetoes = p.HardVetoes
	if s.TimeLimit > 0 {
		opts.TimeLimit = s.TimeLimit
	}
	return opts
}

// NewPlanner builds the configured solver backend and binds it to options.
func NewPlanner(p config.PlannerConfig, s config.SolverConfig) (*planner.Planner, error) {
	backend := s.Backend
	if backend == "" {
		backend = milp.BackendBranchAndBound
	}
	solver, err := milp.New(backend, milp.Options{MaxNodes: s.MaxNodes})
	if err != nil {
		return nil, fmt.Errorf("solver %q (available: %s): %w", backend, strings.Join(milp.Backends(), ", "), err)
	}
	return planner.New(solver, PlannerOptions(p, s))
}

// PlanServiceConfig governs uploads, recovery and cleanup.
type PlanServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxUploadBytes  int64
}

// PlanDownload aggregates resolved download data.
type PlanDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	Size        int64
	ExpiresAt   time.Time
}

// Download kinds served from a result token.
const (
	DownloadWorkbook   = "workbook"
	DownloadStatistics = "statistics"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

// PlanService orchestrates plan runs: uploads, the synchronous solve, job
// submission, status, downloads and housekeeping.
type PlanService struct {
	repo      planRunStore
	queue     jobDispatcher
	planner   *planner.Planner
	exporter  *ExportService
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PlanServiceConfig
}

// NewPlanService constructs the plan service.
func NewPlanService(repo planRunStore, queue jobDispatcher, p *planner.Planner, exporter *ExportService, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg PlanServiceConfig) *PlanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 * 1024 * 1024
	}
	return &PlanService{
		repo:      repo,
		queue:     queue,
		planner:   p,
		exporter:  exporter,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Template returns an empty input workbook for the configured calendar.
func (s *PlanService) Template() ([]byte, error) {
	data, err := s.exporter.RenderTemplate(s.planner.Options())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render template")
	}
	return data, nil
}

// Solve runs the planner on an uploaded workbook and waits for the result.
// A non-optimal outcome is reported as SOLVER_NON_OPTIMAL carrying the
// classification.
func (s *PlanService) Solve(ctx context.Context, upload io.Reader, req dto.SubmitPlanRequest) (*dto.SolveResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan request")
	}
	payload, err := s.readUpload(upload)
	if err != nil {
		return nil, err
	}
	activities, preferences, err := ReadInput(bytes.NewReader(payload))
	if err != nil {
		return nil, mapPlannerError(err)
	}

	p := s.planner.WithTimeLimit(time.Duration(req.TimeLimitSeconds) * time.Second)
	outcome, err := p.Run(ctx, activities, preferences)
	s.observe(ctx, "sync", outcome, err)
	if err != nil {
		return nil, mapPlannerError(err)
	}
	res := outcome.Result
	if !res.Optimal() {
		return nil, appErrors.Clone(appErrors.ErrSolverNonOptimal, res.Classification)
	}
	return toSolveResponse(outcome), nil
}

// Submit stores the upload, records a queued run and hands it to the worker.
func (s *PlanService) Submit(ctx context.Context, upload io.Reader, req dto.SubmitPlanRequest, actorID string) (*dto.PlanRunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan request")
	}
	payload, err := s.readUpload(upload)
	if err != nil {
		return nil, err
	}
	if _, _, err := ReadInput(bytes.NewReader(payload)); err != nil {
		return nil, mapPlannerError(err)
	}

	limit := req.TimeLimitSeconds
	if limit <= 0 {
		limit = int(s.planner.Options().TimeLimit / time.Second)
	}
	run := &models.PlanRun{
		ID:               uuid.NewString(),
		Status:           models.PlanRunStatusQueued,
		TimeLimitSeconds: limit,
		CreatedBy:        actorID,
	}
	relPath, err := s.exporter.SaveUpload(run.ID, bytes.NewReader(payload))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}
	run.UploadPath = relPath

	if err := s.repo.Create(ctx, run); err != nil {
		_ = s.exporter.Delete(relPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create plan run")
	}
	if err := s.queue.Enqueue(planJob(run)); err != nil {
		failed := models.PlanRunStatusFailed
		msg := "failed to enqueue plan run"
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, run.ID, repository.UpdatePlanRunParams{Status: &failed, Message: &msg, FinishedAt: &now})
		_ = s.exporter.Delete(relPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
	}
	s.logger.Info("plan run queued",
		zap.String("run_id", run.ID),
		zap.String("created_by", actorID),
		zap.Int("time_limit_seconds", limit),
		zap.String("request_id", requestid.FromContext(ctx)))
	return toRunResponse(run), nil
}

// GetStatus exposes run metadata. Planners only see their own runs.
func (s *PlanService) GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*dto.PlanRunResponse, error) {
	run := s.cache.GetPlanRun(ctx, id)
	if run == nil {
		var err error
		run, err = s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrNotFound
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan run")
		}
		s.cache.PutPlanRun(ctx, run)
	}
	if role == models.RolePlanner && run.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	return toRunResponse(run), nil
}

// List returns a page of runs, newest first.
func (s *PlanService) List(ctx context.Context, query dto.PlanRunListQuery, actorID string, role models.UserRole) ([]dto.PlanRunResponse, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid list query")
	}
	filter := models.PlanRunFilter{Status: models.PlanRunStatus(query.Status), Page: query.Page, PageSize: query.PageSize}
	if role == models.RolePlanner {
		filter.CreatedBy = actorID
	}
	runs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plan runs")
	}
	out := make([]dto.PlanRunResponse, 0, len(runs))
	for i := range runs {
		out = append(out, *toRunResponse(&runs[i]))
	}
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return out, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ResolveDownload validates token and opens the requested result file.
func (s *PlanService) ResolveDownload(ctx context.Context, token, kind string) (*PlanDownload, error) {
	claims, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	run, err := s.repo.GetByID(ctx, claims.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan run")
	}
	if run.Status != models.PlanRunStatusFinished || run.ResultURL == nil || !strings.HasSuffix(*run.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match a published result")
	}

	relPath, contentType := claims.Path, contentTypeXLSX
	filename := path.Base(relPath)
	if kind == DownloadStatistics {
		relPath, contentType = StatisticsPath(claims.Path), contentTypePDF
		filename = strings.TrimSuffix(filename, path.Ext(filename)) + "_statistics.pdf"
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrExpired, "result file no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open result file")
	}
	var size int64 = -1
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}
	return &PlanDownload{File: file, Filename: filename, ContentType: contentType, Size: size, ExpiresAt: claims.ExpiresAt}, nil
}

// planJob sizes the job deadline to the run's own solver budget plus room to
// load the upload and store the results.
func planJob(run *models.PlanRun) jobs.Job {
	return jobs.Job{
		ID:      run.ID,
		Type:    JobTypePlan,
		Timeout: time.Duration(run.TimeLimitSeconds)*time.Second + jobOverhead,
	}
}

// RecoverPendingRuns replays queued runs after a restart.
func (s *PlanService) RecoverPendingRuns(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued plan runs", "error", err)
		return
	}
	for _, run := range pending {
		if err := s.queue.Enqueue(planJob(&run)); err != nil {
			s.logger.Sugar().Warnw("failed to requeue plan run", "run_id", run.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired results periodically.
func (s *PlanService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *PlanService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	for {
		runs, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			s.logger.Sugar().Warnw("cleanup list failed", "error", err)
			return
		}
		for _, run := range runs {
			if run.ResultPath != nil {
				if err := s.exporter.Delete(*run.ResultPath); err != nil {
					s.logger.Sugar().Warnw("cleanup delete failed", "run_id", run.ID, "error", err)
				}
				_ = s.exporter.Delete(StatisticsPath(*run.ResultPath))
			}
			if err := s.repo.ClearResult(ctx, run.ID); err != nil {
				s.logger.Sugar().Warnw("cleanup clear failed", "run_id", run.ID, "error", err)
				return
			}
			s.cache.ForgetPlanRun(ctx, run.ID)
		}
		if len(runs) < 100 {
			break
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
	}
}

func (s *PlanService) readUpload(upload io.Reader) ([]byte, error) {
	if upload == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	payload, err := io.ReadAll(io.LimitReader(upload, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}
	if int64(len(payload)) > s.cfg.MaxUploadBytes {
		return nil, appErrors.Clone(appErrors.ErrTooLarge, fmt.Sprintf("workbook exceeds %d bytes", s.cfg.MaxUploadBytes))
	}
	if len(payload) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	return payload, nil
}

func (s *PlanService) observe(ctx context.Context, mode string, outcome *planner.Outcome, err error) {
	observeOutcome(s.logger, s.metrics, mode, requestid.FromContext(ctx), outcome, err)
}

// observeOutcome logs normalization and consistency warnings and records
// run metrics. It is shared by the synchronous path and the worker.
func observeOutcome(logger *zap.Logger, metrics *MetricsService, mode, ref string, outcome *planner.Outcome, err error) {
	if outcome == nil {
		return
	}
	fields := []zap.Field{zap.String("mode", mode)}
	if ref != "" {
		fields = append(fields, zap.String("ref", ref))
	}
	for _, w := range outcome.Warnings {
		logger.Warn("input warning", append(fields, zap.String("warning", w.String()))...)
	}
	if err != nil {
		logger.Warn("plan run rejected", append(fields, zap.Error(err))...)
		return
	}
	res := outcome.Result
	kinds := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		logger.Warn("consistency warning", append(fields, zap.String("kind", w.Kind), zap.String("subject", w.Subject), zap.String("detail", w.Detail))...)
		kinds = append(kinds, w.Kind)
	}
	logger.Info("plan run solved", append(fields,
		zap.String("status", string(res.Status)),
		zap.Float64("objective", res.Objective),
		zap.Int("nodes", res.Nodes),
		zap.Duration("runtime", res.Runtime))...)
	metrics.ObservePlanRun(string(res.Status), res.Runtime, len(outcome.Warnings), kinds)
}

// mapPlannerError translates core failures into coded API errors.
func mapPlannerError(err error) error {
	var (
		schema *planner.SchemaError
		empty  *planner.EmptyInputError
		model  *planner.ModelConstructionError
		appErr *appErrors.Error
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &schema):
		return appErrors.Wrap(err, appErrors.ErrSchema.Code, appErrors.ErrSchema.Status, schema.Error())
	case errors.Is(err, export.ErrSheetNotFound):
		return appErrors.Wrap(err, appErrors.ErrSchema.Code, appErrors.ErrSchema.Status, fmt.Sprintf("workbook must contain sheets %q and %q", planner.TableActivities, planner.TablePreferences))
	case errors.As(err, &empty):
		return appErrors.Wrap(err, appErrors.ErrEmptyInput.Code, appErrors.ErrEmptyInput.Status, empty.Error())
	case errors.As(err, &model):
		return appErrors.Wrap(err, appErrors.ErrModelConstruction.Code, appErrors.ErrModelConstruction.Status, model.Error())
	case errors.Is(err, export.ErrUnreadable):
		return appErrors.Wrap(err, appErrors.ErrInvalidWorkbook.Code, appErrors.ErrInvalidWorkbook.Status, appErrors.ErrInvalidWorkbook.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "planning failed")
	}
}

func summarize(outcome *planner.Outcome) models.PlanSummary {
	var summary models.PlanSummary
	if outcome == nil {
		return summary
	}
	if outcome.Input != nil {
		summary.Students = len(outcome.Input.Students)
		summary.Instances = len(outcome.Input.Instances)
	}
	for i, w := range outcome.Warnings {
		if i == maxSummaryWarnings {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("... %d more", len(outcome.Warnings)-maxSummaryWarnings))
			break
		}
		summary.Warnings = append(summary.Warnings, w.String())
	}
	res := outcome.Result
	if res == nil {
		return summary
	}
	summary.Classification = res.Classification
	if res.Optimal() {
		obj := res.Objective
		summary.Objective = &obj
	}
	for _, w := range res.Warnings {
		summary.Faults = append(summary.Faults, w.Error())
	}
	for _, p := range planner.StatisticsPairs(res) {
		summary.Statistics = append(summary.Statistics, models.PlanStatistic{Label: p.Label, Value: p.Value})
	}
	return summary
}

func toRunResponse(run *models.PlanRun) *dto.PlanRunResponse {
	resp := &dto.PlanRunResponse{
		ID:           run.ID,
		Status:       run.Status,
		SolverStatus: run.SolverStatus,
		Message:      run.Message,
		ResultURL:    run.ResultURL,
		CreatedAt:    run.CreatedAt,
		FinishedAt:   run.FinishedAt,
	}
	if run.Status.Done() {
		summary := run.Summary
		resp.Summary = &summary
	}
	if run.ResultURL != nil {
		stats := *run.ResultURL + "/statistics.pdf"
		resp.StatisticsURL = &stats
	}
	return resp
}

func toSolveResponse(outcome *planner.Outcome) *dto.SolveResponse {
	res := outcome.Result
	summary := summarize(outcome)
	resp := &dto.SolveResponse{
		Status:         string(res.Status),
		Classification: res.Classification,
		Objective:      res.Objective,
		Sessions:       res.Sessions,
		Statistics:     summary.Statistics,
		Warnings:       summary.Warnings,
		Faults:         summary.Faults,
	}
	for _, sched := range res.Schedules {
		row := dto.ScheduleRow{
			StudentID:  sched.Student.ID,
			LastName:   sched.Student.LastName,
			FirstName:  sched.Student.FirstName,
			ClassGroup: sched.Student.ClassGroup,
			Sessions:   make(map[string]string, len(res.Sessions)),
		}
		for i, name := range res.Sessions {
			row.Sessions[name] = sched.BySession[i]
		}
		resp.Schedules = append(resp.Schedules, row)
	}
	for _, roster := range res.Rosters {
		inst := roster.Instance
		row := dto.RosterRow{
			InstanceID:    inst.ID,
			Code:          inst.Code,
			Description:   inst.Description,
			Owner:         inst.Owner,
			Location:      inst.Location,
			Sessions:      inst.SessionNames(),
			MaxCapacity:   inst.MaxCapacity,
			IdealCapacity: inst.IdealCapacity,
			Deviation:     roster.Deviation,
			Students:      make([]string, 0, len(roster.Students)),
		}
		for _, st := range roster.Students {
			row.Students = append(row.Students, st.DisplayName())
		}
		resp.Rosters = append(resp.Rosters, row)
	}
	return resp
}
