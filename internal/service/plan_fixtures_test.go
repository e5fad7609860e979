package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-activity-planner/internal/models"
	"github.com/noah-isme/sma-activity-planner/internal/planner"
	"github.com/noah-isme/sma-activity-planner/internal/repository"
	"github.com/noah-isme/sma-activity-planner/pkg/export"
	"github.com/noah-isme/sma-activity-planner/pkg/jobs"
	"github.com/noah-isme/sma-activity-planner/pkg/milp"
	"github.com/noah-isme/sma-activity-planner/pkg/storage"
)

var testSessions = []string{"S1", "S2", "S3"}

type planRunStoreStub struct {
	mu       sync.Mutex
	runs     map[string]*models.PlanRun
	updates  int
	onUpdate func(repository.UpdatePlanRunParams)
}

func newPlanRunStoreStub() *planRunStoreStub {
	return &planRunStoreStub{runs: map[string]*models.PlanRun{}}
}

func (s *planRunStoreStub) Create(ctx context.Context, run *models.PlanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *planRunStoreStub) GetByID(ctx context.Context, id string) (*models.PlanRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *run
	return &cp, nil
}

func (s *planRunStoreStub) Update(ctx context.Context, id string, params repository.UpdatePlanRunParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.onUpdate != nil {
		defer s.onUpdate(params)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return errors.New("not found")
	}
	s.updates++
	if params.Status != nil {
		run.Status = *params.Status
	}
	if params.SolverStatus != nil {
		run.SolverStatus = params.SolverStatus
	}
	if params.Message != nil {
		run.Message = params.Message
	}
	if params.Summary != nil {
		run.Summary = *params.Summary
	}
	if params.ResultPath != nil {
		run.ResultPath = params.ResultPath
	}
	if params.ResultURL != nil {
		run.ResultURL = params.ResultURL
	}
	if params.FinishedAt != nil {
		run.FinishedAt = params.FinishedAt
	}
	return nil
}

func (s *planRunStoreStub) List(ctx context.Context, filter models.PlanRunFilter) ([]models.PlanRun, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PlanRun
	for _, run := range s.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.CreatedBy != "" && run.CreatedBy != filter.CreatedBy {
			continue
		}
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (s *planRunStoreStub) ListQueued(ctx context.Context, limit int) ([]models.PlanRun, error) {
	runs, _, err := s.List(ctx, models.PlanRunFilter{Status: models.PlanRunStatusQueued})
	return runs, err
}

func (s *planRunStoreStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PlanRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PlanRun
	for _, run := range s.runs {
		if run.Status == models.PlanRunStatusFinished && run.ResultPath != nil && run.FinishedAt != nil && run.FinishedAt.Before(cutoff) {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (s *planRunStoreStub) ClearResult(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.ResultPath = nil
		run.ResultURL = nil
	}
	return nil
}

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type planHarness struct {
	svc      *PlanService
	worker   *PlanWorker
	store    *planRunStoreStub
	queue    *dispatcherStub
	files    *storage.LocalStorage
	exporter *ExportService
	metrics  *MetricsService
}

func newPlanHarness(t *testing.T, maxRetries int) *planHarness {
	t.Helper()
	opts := planner.DefaultOptions()
	opts.Sessions = testSessions
	opts.TimeLimit = time.Minute
	p, err := planner.New(milp.NewBranchAndBound(milp.Options{}), opts)
	require.NoError(t, err)

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	exporter := NewExportService(files, storage.NewSignedURLSigner("secret", time.Hour), ExportConfig{APIPrefix: "/api/v1"}, zap.NewNop())
	metrics := NewMetricsService()
	cache := NewCacheService(nil, metrics, time.Minute, zap.NewNop(), false)

	h := &planHarness{
		store:    newPlanRunStoreStub(),
		queue:    &dispatcherStub{},
		files:    files,
		exporter: exporter,
		metrics:  metrics,
	}
	h.svc = NewPlanService(h.store, h.queue, p, exporter, cache, metrics, nil, zap.NewNop(), PlanServiceConfig{ResultTTL: 24 * time.Hour, MaxUploadBytes: 1 << 20})
	h.worker = NewPlanWorker(h.store, p, exporter, cache, metrics, maxRetries, zap.NewNop())
	return h
}

// campWorkbook is feasible: one instance spans every session.
func campWorkbook(t *testing.T, students int) []byte {
	t.Helper()
	acts := export.Dataset{
		Headers: append([]string{planner.ColCode, planner.ColDescription, planner.ColOwner, planner.ColLocation,
			planner.ColPeriodCount, planner.ColMaxPerSession, planner.ColIdealPerSession}, "Session_1", "Session_2", "Session_3"),
		Rows: []map[string]string{{
			planner.ColCode: "CAMP", planner.ColDescription: "Camp", planner.ColMaxPerSession: "10", planner.ColIdealPerSession: "10",
			"Session_1": "S1", "Session_2": "S2", "Session_3": "S3",
		}},
	}
	return renderInput(t, acts, studentTable(students, "CAMP"))
}

// soloWorkbook is infeasible: nothing covers S2 and S3.
func soloWorkbook(t *testing.T) []byte {
	t.Helper()
	acts := export.Dataset{
		Headers: []string{planner.ColCode, planner.ColDescription, planner.ColOwner, planner.ColLocation,
			planner.ColPeriodCount, planner.ColMaxPerSession, planner.ColIdealPerSession, "Session_1", "Session_2", "Session_3"},
		Rows: []map[string]string{{planner.ColCode: "SOLO", planner.ColMaxPerSession: "1", planner.ColIdealPerSession: "1", "Session_1": "S1"}},
	}
	return renderInput(t, acts, studentTable(2, "SOLO"))
}

func studentTable(n int, codes ...string) export.Dataset {
	data := export.Dataset{Headers: append([]string{planner.ColLastName, planner.ColFirstName, planner.ColClassGroup, planner.ColPreferenceCount}, codes...)}
	for i := 1; i <= n; i++ {
		data.Rows = append(data.Rows, map[string]string{
			planner.ColLastName:   "Student",
			planner.ColFirstName:  "N" + strconv.Itoa(i),
			planner.ColClassGroup: "10A",
		})
	}
	return data
}

func renderInput(t *testing.T, acts, prefs export.Dataset) []byte {
	t.Helper()
	payload, err := export.NewXLSXExporter().Render(
		export.Sheet{Name: planner.TableActivities, Data: acts},
		export.Sheet{Name: planner.TablePreferences, Data: prefs},
	)
	require.NoError(t, err)
	return payload
}
