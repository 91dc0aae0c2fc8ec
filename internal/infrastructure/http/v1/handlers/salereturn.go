package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
	"caixa/internal/domain/documents/salereturn"
	"caixa/internal/infrastructure/http/v1/dto"
	"caixa/internal/infrastructure/http/v1/middleware"
)

// ReturnHandler handles sale return endpoints.
type ReturnHandler struct {
	*BaseHandler
	service *salereturn.Service
}

// NewReturnHandler creates a new return handler.
func NewReturnHandler(base *BaseHandler, service *salereturn.Service) *ReturnHandler {
	return &ReturnHandler{
		BaseHandler: base,
		service:     service,
	}
}

// NextTradeCode handles GET /returns/next-trade-code - previews the trade
// code the next return will receive. The code is only consumed on Create.
func (h *ReturnHandler) NextTradeCode(c *gin.Context) {
	ctx := c.Request.Context()

	companyID, err := id.Parse(h.GetCompanyID(c))
	if err != nil {
		h.Error(c, apperror.NewUnauthorized("not authenticated"))
		return
	}

	code, err := h.service.NextTradeCode(ctx, companyID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tradeCode": code})
}

// Create handles POST /returns - drafts a return against an origin sale.
func (h *ReturnHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req salereturn.CreateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ret, err := h.service.Create(ctx, req)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", ret)
	c.JSON(http.StatusCreated, ret)
}

// Process handles POST /returns/:id/process - posts the return, restores
// stock and refunds. Stock warnings are reported, not fatal.
func (h *ReturnHandler) Process(c *gin.Context) {
	ctx := c.Request.Context()

	returnID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	ret, warnings, err := h.service.Process(ctx, returnID)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := gin.H{"return": ret}
	if len(warnings) > 0 {
		response["warnings"] = warnings
	}

	h.CompleteIdempotency(c, http.StatusOK, "application/json", response)
	c.JSON(http.StatusOK, response)
}

// Cancel handles POST /returns/:id/cancel - cancels a drafted return.
func (h *ReturnHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()

	returnID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	ret, err := h.service.Cancel(ctx, returnID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusOK, "application/json", ret)
	c.JSON(http.StatusOK, ret)
}

// Get handles GET /returns/:id
func (h *ReturnHandler) Get(c *gin.Context) {
	returnID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	ret, err := h.service.Get(c.Request.Context(), returnID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}

// List handles GET /returns with filtering and pagination.
func (h *ReturnHandler) List(c *gin.Context) {
	filter := salereturn.ListFilter{
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if v := c.Query("companyId"); v != "" {
		parsed, err := id.Parse(v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid companyId format"))
			return
		}
		filter.CompanyID = &parsed
	}
	if v := c.Query("originSaleId"); v != "" {
		parsed, err := id.Parse(v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid originSaleId format"))
			return
		}
		filter.OriginSaleID = &parsed
	}
	if v := c.Query("status"); v != "" {
		status := salereturn.Status(v)
		filter.Status = &status
	}
	if v := c.Query("fromDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid fromDate format (RFC3339 expected)"))
			return
		}
		filter.FromDate = &t
	}
	if v := c.Query("toDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid toDate format (RFC3339 expected)"))
			return
		}
		filter.ToDate = &t
	}

	returns, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      returns,
		TotalCount: int64(total),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// RegisterRoutes registers return routes. Posting and cancelling a return
// require manager rights.
func (h *ReturnHandler) RegisterRoutes(rg *gin.RouterGroup) {
	returns := rg.Group("/returns")
	{
		returns.GET("/next-trade-code", h.NextTradeCode)
		returns.POST("", h.Create)
		returns.POST("/:id/process", middleware.RequireManager(), h.Process)
		returns.POST("/:id/cancel", middleware.RequireManager(), h.Cancel)
		returns.GET("/:id", h.Get)
		returns.GET("", h.List)
	}
}
