package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
	"caixa/internal/domain/documents/sale"
	"caixa/internal/infrastructure/http/v1/dto"
)

// SaleHandler handles point-of-sale endpoints.
type SaleHandler struct {
	*BaseHandler
	service *sale.Service
}

// NewSaleHandler creates a new sale handler.
func NewSaleHandler(base *BaseHandler, service *sale.Service) *SaleHandler {
	return &SaleHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Hold handles POST /sales/hold - parks the current cart as a draft.
func (h *SaleHandler) Hold(c *gin.Context) {
	ctx := c.Request.Context()

	var req sale.HoldRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := h.service.Hold(ctx, req)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusOK, "application/json", doc)
	c.JSON(http.StatusOK, doc)
}

// Finalize handles POST /sales/finalize - closes a sale end to end.
func (h *SaleHandler) Finalize(c *gin.Context) {
	ctx := c.Request.Context()

	var req sale.FinalizeRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.Finalize(ctx, req)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusOK, "application/json", result)
	c.JSON(http.StatusOK, result)
}

// ReemitFiscal handles POST /sales/:id/fiscal/reemit - retries a parked
// fiscal submission.
func (h *SaleHandler) ReemitFiscal(c *gin.Context) {
	ctx := c.Request.Context()

	saleID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	doc, err := h.service.ReemitFiscal(ctx, saleID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusOK, "application/json", doc)
	c.JSON(http.StatusOK, doc)
}

// Get handles GET /sales/:id
func (h *SaleHandler) Get(c *gin.Context) {
	saleID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	doc, err := h.service.Get(c.Request.Context(), saleID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// ListHeld handles GET /sales/held - held drafts of the current operator.
func (h *SaleHandler) ListHeld(c *gin.Context) {
	sales, err := h.service.ListHeld(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": sales})
}

// ListFiscalPending handles GET /sales/fiscal/pending - sales whose fiscal
// submission is parked awaiting re-emission.
func (h *SaleHandler) ListFiscalPending(c *gin.Context) {
	sales, err := h.service.ListFiscalPending(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": sales})
}

// List handles GET /sales with filtering and pagination.
func (h *SaleHandler) List(c *gin.Context) {
	filter := sale.ListFilter{
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
	if v := c.Query("operatorId"); v != "" {
		parsed, err := id.Parse(v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid operatorId format"))
			return
		}
		filter.OperatorID = &parsed
	}
	if v := c.Query("customerId"); v != "" {
		parsed, err := id.Parse(v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid customerId format"))
			return
		}
		filter.CustomerID = &parsed
	}
	if v := c.Query("status"); v != "" {
		status := sale.Status(v)
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

	sales, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      sales,
		TotalCount: int64(total),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// RegisterRoutes registers sale routes.
func (h *SaleHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sales := rg.Group("/sales")
	{
		sales.POST("/hold", h.Hold)
		sales.GET("/held", h.ListHeld)
		sales.POST("/finalize", h.Finalize)
		sales.GET("/fiscal/pending", h.ListFiscalPending)
		sales.POST("/:id/fiscal/reemit", h.ReemitFiscal)
		sales.GET("/:id", h.Get)
		sales.GET("", h.List)
	}
}
