package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"caixa/internal/core/apperror"
	"caixa/internal/core/entity"
	"caixa/internal/core/id"
	"caixa/internal/domain/registers/stock"
)

// StockHandler handles HTTP requests for the stock register.
type StockHandler struct {
	*BaseHandler
	service *stock.Service
}

// NewStockHandler creates a new stock register handler.
func NewStockHandler(base *BaseHandler, service *stock.Service) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		service:     service,
	}
}

// GetBalance handles GET /stock/:productId/balance
func (h *StockHandler) GetBalance(c *gin.Context) {
	ctx := c.Request.Context()

	productID, err := id.Parse(c.Param("productId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return
	}

	balance, err := h.service.GetBalance(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

// GetMovements handles GET /stock/movements
func (h *StockHandler) GetMovements(c *gin.Context) {
	ctx := c.Request.Context()

	// Product is required for movement history
	productIDStr := c.Query("productId")
	if productIDStr == "" {
		h.Error(c, apperror.NewValidation("productId is required"))
		return
	}

	productID, err := id.Parse(productIDStr)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return
	}

	filter := stock.MovementFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if v := c.Query("recordType"); v != "" {
		rt := entity.RecordType(v)
		filter.RecordType = &rt
	}

	if v := c.Query("kind"); v != "" {
		kind := entity.MovementKind(v)
		filter.Kind = &kind
	}

	// Parse optional date range
	if fromStr := c.Query("fromDate"); fromStr != "" {
		if parsed, err := time.Parse(time.RFC3339, fromStr); err == nil {
			filter.FromDate = &parsed
		}
	}

	if toStr := c.Query("toDate"); toStr != "" {
		if parsed, err := time.Parse(time.RFC3339, toStr); err == nil {
			filter.ToDate = &parsed
		}
	}

	movements, err := h.service.GetMovementHistory(ctx, productID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":      movements,
		"totalCount": len(movements),
	})
}

// GetMovementsByRecorder handles GET /stock/movements/by-recorder/:recorderId -
// every movement a sale or return produced, including recipe component lines.
func (h *StockHandler) GetMovementsByRecorder(c *gin.Context) {
	ctx := c.Request.Context()

	recorderID, err := id.Parse(c.Param("recorderId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid recorderId format"))
		return
	}

	movements, err := h.service.GetMovementsByRecorder(ctx, recorderID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": movements})
}

// RegisterRoutes registers stock register routes.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	st := rg.Group("/stock")
	{
		st.GET("/movements", h.GetMovements)
		st.GET("/movements/by-recorder/:recorderId", h.GetMovementsByRecorder)
		st.GET("/:productId/balance", h.GetBalance)
	}
}
