package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-activity-planner/internal/dto"
	"github.com/noah-isme/sma-activity-planner/internal/models"
	"github.com/noah-isme/sma-activity-planner/internal/service"
	appErrors "github.com/noah-isme/sma-activity-planner/pkg/errors"
	"github.com/noah-isme/sma-activity-planner/pkg/response"
)

type planService interface {
	Solve(ctx context.Context, upload io.Reader, req dto.SubmitPlanRequest) (*dto.SolveResponse, error)
	Submit(ctx context.Context, upload io.Reader, req dto.SubmitPlanRequest, actorID string) (*dto.PlanRunResponse, error)
	GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*dto.PlanRunResponse, error)
	List(ctx context.Context, query dto.PlanRunListQuery, actorID string, role models.UserRole) ([]dto.PlanRunResponse, *models.Pagination, error)
	ResolveDownload(ctx context.Context, token, kind string) (*service.PlanDownload, error)
	Template() ([]byte, error)
}

const templateFilename = "Template.xlsx"

// PlanHandler exposes planning endpoints.
type PlanHandler struct {
	service planService
}

// NewPlanHandler constructs the handler.
func NewPlanHandler(svc planService) *PlanHandler {
	return &PlanHandler{service: svc}
}

// Solve godoc
// @Summary Plan an activity week synchronously
// @Tags Plans
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Input workbook with Activities and Preferences sheets"
// @Param timeLimitSeconds formData int false "Solver time limit (1-3600)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /plans/solve [post]
func (h *PlanHandler) Solve(c *gin.Context) {
	upload, req, ok := h.bindUpload(c)
	if !ok {
		return
	}
	defer upload.Close()

	result, err := h.service.Solve(c.Request.Context(), upload, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Submit godoc
// @Summary Queue a planning run
// @Tags Plans
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Input workbook with Activities and Preferences sheets"
// @Param timeLimitSeconds formData int false "Solver time limit (1-3600)"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /plans [post]
func (h *PlanHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	upload, req, ok := h.bindUpload(c)
	if !ok {
		return
	}
	defer upload.Close()

	run, err := h.service.Submit(c.Request.Context(), upload, req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run)
}

// List godoc
// @Summary List planning runs
// @Tags Plans
// @Produce json
// @Param status query string false "QUEUED, RUNNING, FINISHED or FAILED"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /plans [get]
func (h *PlanHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.PlanRunListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	runs, page, err := h.service.List(c.Request.Context(), query, claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, page)
}

// Status godoc
// @Summary Planning run status
// @Tags Plans
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /plans/{id} [get]
func (h *PlanHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	run, err := h.service.GetStatus(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// Download godoc
// @Summary Download the result workbook
// @Tags Plans
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /plans/download/{token} [get]
func (h *PlanHandler) Download(c *gin.Context) {
	h.download(c, service.DownloadWorkbook)
}

// Statistics godoc
// @Summary Download the statistics report
// @Tags Plans
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /plans/download/{token}/statistics.pdf [get]
func (h *PlanHandler) Statistics(c *gin.Context) {
	h.download(c, service.DownloadStatistics)
}

// Template godoc
// @Summary Download an empty input workbook
// @Tags Plans
// @Produce octet-stream
// @Success 200 {file} binary
// @Router /plans/template [get]
func (h *PlanHandler) Template(c *gin.Context) {
	payload, err := h.service.Template()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+templateFilename+"\"")
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", payload)
}

func (h *PlanHandler) download(c *gin.Context, kind string) {
	token := c.Param("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}
	file, err := h.service.ResolveDownload(c.Request.Context(), token, kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.File.Close()
	c.Header("X-Expires-At", file.ExpiresAt.UTC().Format(time.RFC3339))
	response.Attachment(c, file.Filename, file.ContentType, file.Size, file.File)
}

func (h *PlanHandler) bindUpload(c *gin.Context) (io.ReadCloser, dto.SubmitPlanRequest, bool) {
	var req dto.SubmitPlanRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form fields"))
		return nil, req, false
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return nil, req, false
	}
	src, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return nil, req, false
	}
	return src, req, true
}
