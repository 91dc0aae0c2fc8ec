// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"caixa/internal/core/apperror"
	appctx "caixa/internal/core/context"
	"caixa/internal/core/id"
	"caixa/internal/domain/auth"
	"caixa/internal/infrastructure/http/v1/dto"
	"caixa/internal/infrastructure/http/v1/middleware"
)

// AuthHandler handles operator authentication endpoints.
type AuthHandler struct {
	*BaseHandler
	service *auth.Service
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *BaseHandler, service *auth.Service) *AuthHandler {
	return &AuthHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var creds auth.Credentials
	if !h.BindJSON(c, &creds) {
		return
	}

	session, err := h.service.Login(ctx, creds)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()

	opCtx := appctx.GetOperator(ctx)
	if opCtx == nil {
		h.Error(c, apperror.NewUnauthorized("not authenticated"))
		return
	}

	operatorID, err := id.Parse(opCtx.OperatorID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid operator id"))
		return
	}

	op, err := h.service.GetOperatorByID(ctx, operatorID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, op)
}

// ChangePIN handles POST /auth/change-pin
func (h *AuthHandler) ChangePIN(c *gin.Context) {
	ctx := c.Request.Context()

	opCtx := appctx.GetOperator(ctx)
	if opCtx == nil {
		h.Error(c, apperror.NewUnauthorized("not authenticated"))
		return
	}

	operatorID, err := id.Parse(opCtx.OperatorID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid operator id"))
		return
	}

	var req dto.ChangePINRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.service.ChangePIN(ctx, operatorID, req.CurrentPIN, req.NewPIN); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "pin changed")
}

// CreateOperator handles POST /auth/operators
func (h *AuthHandler) CreateOperator(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateOperatorRequest
	if !h.BindJSON(c, &req) {
		return
	}

	companyID, err := id.Parse(req.CompanyID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid company id"))
		return
	}

	op, err := h.service.CreateOperator(ctx, companyID, req.Login, req.Name, req.PIN, req.ReceiptSeries, req.IsManager)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", op)
	c.JSON(http.StatusCreated, op)
}

// GetOperator handles GET /auth/operators/:id
func (h *AuthHandler) GetOperator(c *gin.Context) {
	operatorID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	op, err := h.service.GetOperatorByID(c.Request.Context(), operatorID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, op)
}

// ListOperators handles GET /auth/operators
func (h *AuthHandler) ListOperators(c *gin.Context) {
	filter := auth.OperatorFilter{
		Search: c.Query("search"),
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if isActive := c.Query("isActive"); isActive != "" {
		val := isActive == "true"
		filter.IsActive = &val
	}
	if isManager := c.Query("isManager"); isManager != "" {
		val := isManager == "true"
		filter.IsManager = &val
	}

	operators, total, err := h.service.ListOperators(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      operators,
		TotalCount: int64(total),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	// Public routes (no auth required)
	public.POST("/login", h.Login)

	// Protected routes (auth required)
	protected.GET("/me", h.Me)
	protected.POST("/change-pin", h.ChangePIN)

	// Operator management is privileged.
	protected.POST("/operators", middleware.RequireManager(), h.CreateOperator)
	protected.GET("/operators", middleware.RequireManager(), h.ListOperators)
	protected.GET("/operators/:id", middleware.RequireManager(), h.GetOperator)
}
