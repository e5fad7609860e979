package service

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-activity-planner/internal/planner"
	"github.com/noah-isme/sma-activity-planner/pkg/export"
	"github.com/noah-isme/sma-activity-planner/pkg/storage"
)

type fileStorage interface {
	Save(relPath string, data []byte) (string, error)
	SaveStream(relPath string, r io.Reader) (string, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type workbookRenderer interface {
	Render(sheets ...export.Sheet) ([]byte, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes where results are published.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// StoredResult describes the files written for a finished run.
type StoredResult struct {
	WorkbookPath   string
	StatisticsPath string
	Token          string
	URL            string
	StatisticsURL  string
	ExpiresAt      time.Time
}

// ExportService renders planner results into workbooks, CSV and PDF, and
// keeps uploads and results in file storage behind signed download tokens.
// Storage and signer may be nil for purely local rendering.
type ExportService struct {
	storage fileStorage
	xlsx    workbookRenderer
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	cfg.APIPrefix = strings.TrimRight(cfg.APIPrefix, "/")
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportService{
		storage: store,
		xlsx:    export.NewXLSXExporter(),
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// ResultDatasets returns the three output tables in workbook order.
func ResultDatasets(res *planner.Result) []export.Sheet {
	return []export.Sheet{
		{Name: planner.TableStudentSchedule, Data: planner.StudentScheduleDataset(res)},
		{Name: planner.TableActivityRoster, Data: planner.ActivityRosterDataset(res)},
		{Name: planner.TableStatistics, Data: planner.StatisticsDataset(res)},
	}
}

// RenderWorkbook writes the result tables into one xlsx workbook.
func (s *ExportService) RenderWorkbook(res *planner.Result) ([]byte, error) {
	return s.xlsx.Render(ResultDatasets(res)...)
}

// RenderStatisticsPDF renders the statistics table as a printable report.
func (s *ExportService) RenderStatisticsPDF(res *planner.Result) ([]byte, error) {
	return s.pdf.Render(planner.StatisticsDataset(res), "Activity week statistics")
}

// RenderCSV renders each result table to CSV, keyed by file name.
func (s *ExportService) RenderCSV(res *planner.Result) (map[string][]byte, error) {
	out := make(map[string][]byte, 3)
	for _, sheet := range ResultDatasets(res) {
		data, err := s.csv.Render(sheet.Data)
		if err != nil {
			return nil, fmt.Errorf("render %s csv: %w", sheet.Name, err)
		}
		out[sheet.Name+".csv"] = data
	}
	return out, nil
}

// RenderTemplate returns an empty input workbook for the calendar in opts.
func (s *ExportService) RenderTemplate(opts planner.Options) ([]byte, error) {
	activities, preferences, err := planner.TemplateDatasets(opts)
	if err != nil {
		return nil, err
	}
	return s.xlsx.Render(
		export.Sheet{Name: planner.TableActivities, Data: activities},
		export.Sheet{Name: planner.TablePreferences, Data: preferences},
	)
}

// ReadInput loads the activities and preferences tables from a workbook.
func ReadInput(r io.Reader) (export.Dataset, export.Dataset, error) {
	sheets, err := export.ReadWorkbook(r, planner.TableActivities, planner.TablePreferences)
	if err != nil {
		return export.Dataset{}, export.Dataset{}, err
	}
	return sheets[planner.TableActivities], sheets[planner.TablePreferences], nil
}

// SaveUpload stores an uploaded workbook for a run.
func (s *ExportService) SaveUpload(runID string, r io.Reader) (string, error) {
	if s.storage == nil {
		return "", fmt.Errorf("file storage not configured")
	}
	return s.storage.SaveStream(path.Join("uploads", runID+".xlsx"), r)
}

// OpenUpload reads the stored input workbook of a run.
func (s *ExportService) OpenUpload(relPath string) (export.Dataset, export.Dataset, error) {
	if s.storage == nil {
		return export.Dataset{}, export.Dataset{}, fmt.Errorf("file storage not configured")
	}
	f, err := s.storage.Open(relPath)
	if err != nil {
		return export.Dataset{}, export.Dataset{}, err
	}
	defer f.Close() //nolint:errcheck
	return ReadInput(f)
}

// Store renders and saves the workbook and statistics PDF of a finished run
// and signs a download token for them.
func (s *ExportService) Store(runID string, res *planner.Result) (*StoredResult, error) {
	if s.storage == nil || s.signer == nil {
		return nil, fmt.Errorf("result storage not configured")
	}
	workbook, err := s.RenderWorkbook(res)
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	report, err := s.RenderStatisticsPDF(res)
	if err != nil {
		return nil, fmt.Errorf("render statistics: %w", err)
	}

	dir := path.Join("results", runID)
	xlsxPath, err := s.storage.Save(path.Join(dir, fmt.Sprintf("Planning_%s.xlsx", s.now().UTC().Format("20060102_150405"))), workbook)
	if err != nil {
		return nil, err
	}
	pdfPath, err := s.storage.Save(StatisticsPath(xlsxPath), report)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Sign(runID, xlsxPath)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/plans/download/%s", s.cfg.APIPrefix, token)
	return &StoredResult{
		WorkbookPath:   xlsxPath,
		StatisticsPath: pdfPath,
		Token:          token,
		URL:            url,
		StatisticsURL:  url + "/statistics.pdf",
		ExpiresAt:      expiresAt,
	}, nil
}

// StatisticsPath is where the PDF report of a workbook is kept.
func StatisticsPath(workbookPath string) string {
	return path.Join(path.Dir(workbookPath), "statistics.pdf")
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (*storage.DownloadClaims, error) {
	if s.signer == nil {
		return nil, storage.ErrTokenInvalid
	}
	return s.signer.Verify(token, allowExpired)
}

// Open returns a handle to a stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("file storage not configured")
	}
	return s.storage.Open(relPath)
}

// Delete removes a stored file.
func (s *ExportService) Delete(relPath string) error {
	if s.storage == nil || relPath == "" {
		return nil
	}
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, defaulting to the result TTL.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if s.storage == nil {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}
