package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-activity-planner/internal/dto"
	"github.com/noah-isme/sma-activity-planner/internal/models"
	appErrors "github.com/noah-isme/sma-activity-planner/pkg/errors"
	"github.com/noah-isme/sma-activity-planner/pkg/response"
)

type tokenIssuer interface {
	IssueToken(req dto.IssueTokenRequest) (*models.IssuedToken, error)
}

// AuthHandler lets administrators mint access tokens for other users.
type AuthHandler struct {
	service tokenIssuer
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc tokenIssuer) *AuthHandler {
	return &AuthHandler{service: svc}
}

// IssueToken godoc
// @Summary Issue an access token
// @Description Administrators issue bearer tokens for planners and viewers
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body dto.IssueTokenRequest true "Token subject"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/tokens [post]
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req dto.IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid token payload"))
		return
	}
	token, err := h.service.IssueToken(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, token, nil)
}

// Me godoc
// @Summary Current token claims
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"userId":   claims.UserID,
		"role":     claims.Role,
		"email":    claims.Email,
		"fullName": claims.FullName,
	}, nil)
}
