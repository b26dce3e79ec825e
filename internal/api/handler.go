package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/aamircoretechies/bison360-sub000/internal/models"
	"github.com/aamircoretechies/bison360-sub000/internal/service"
	"github.com/aamircoretechies/bison360-sub000/internal/syncqueue"
	"github.com/aamircoretechies/bison360-sub000/internal/util"
)

// Handler contains HTTP handlers
type Handler struct {
	register *service.RegisterService
	queue    *syncqueue.Queue
	probe    *syncqueue.Probe
}

// NewHandler creates a new HTTP handler
func NewHandler(register *service.RegisterService, queue *syncqueue.Queue, probe *syncqueue.Probe) *Handler {
	return &Handler{
		register: register,
		queue:    queue,
		probe:    probe,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		v1.GET("/terminals/:tid/cart", h.getCart)
		v1.POST("/terminals/:tid/cart/items", h.addItem)
		v1.POST("/terminals/:tid/cart/scan", h.scanItem)
		v1.PATCH("/terminals/:tid/cart/items/:pid", h.updateQuantity)
		v1.DELETE("/terminals/:tid/cart/items/:pid", h.removeItem)
		v1.DELETE("/terminals/:tid/cart", h.clearCart)
		v1.POST("/terminals/:tid/cart/discount", h.setDiscount)
		v1.POST("/terminals/:tid/checkout", h.checkout)
		v1.DELETE("/terminals/:tid/checkout", h.cancelPayment)
		v1.POST("/terminals/:tid/complete", h.completeSale)
		v1.GET("/terminals/:tid/sales", h.terminalSales)

		v1.GET("/sales/:id", h.getSale)

		v1.GET("/sync/queue", h.syncQueue)
		v1.POST("/sync/flush", h.syncFlush)
		v1.PUT("/sync/connectivity", h.setConnectivity)
		v1.DELETE("/sync/connectivity", h.clearConnectivity)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"online": h.probe.Online(),
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.register.ListProducts(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.register.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.register.CartQuote(c.Request.Context(), c.Param("tid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type addItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

func (h *Handler) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	view, err := h.register.AddItem(c.Request.Context(), c.Param("tid"), req.ProductID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type scanItemRequest struct {
	SKU string `json:"sku" binding:"required"`
}

func (h *Handler) scanItem(c *gin.Context) {
	var req scanItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	view, err := h.register.ScanItem(c.Request.Context(), c.Param("tid"), req.SKU)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateQuantity(c *gin.Context) {
	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	view, err := h.register.UpdateQuantity(c.Request.Context(), c.Param("tid"), c.Param("pid"), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeItem(c *gin.Context) {
	view, err := h.register.RemoveItem(c.Request.Context(), c.Param("tid"), c.Param("pid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.register.ClearCart(c.Request.Context(), c.Param("tid")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type discountRequest struct {
	Type   string `json:"type" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) setDiscount(c *gin.Context) {
	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid discount amount"})
		return
	}

	view, err := h.register.SetDiscount(c.Request.Context(), c.Param("tid"), models.DiscountConfig{
		Type:   models.DiscountType(req.Type),
		Amount: amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type checkoutRequest struct {
	Method         string `json:"method" binding:"required"`
	AmountReceived string `json:"amount_received,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	svcReq := &service.CheckoutRequest{
		Method:         models.PaymentMethod(req.Method),
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.AmountReceived != "" {
		amount, err := decimal.NewFromString(req.AmountReceived)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount received"})
			return
		}
		svcReq.AmountReceived = &amount
	}

	receipt, err := h.register.Checkout(c.Request.Context(), c.Param("tid"), svcReq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

func (h *Handler) cancelPayment(c *gin.Context) {
	view, err := h.register.CancelPayment(c.Request.Context(), c.Param("tid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) completeSale(c *gin.Context) {
	if err := h.register.CompleteSale(c.Request.Context(), c.Param("tid")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getSale(c *gin.Context) {
	detail, err := h.register.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sale not found", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) terminalSales(c *gin.Context) {
	sales, err := h.register.ListTerminalSales(c.Request.Context(), c.Param("tid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

func (h *Handler) syncQueue(c *gin.Context) {
	pending, err := h.queue.Pending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"online":  h.probe.Online(),
		"pending": pending,
	})
}

func (h *Handler) syncFlush(c *gin.Context) {
	result, err := h.queue.Flush(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.Offline {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"result":   result,
		"progress": result.Progress(),
	})
}

type connectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// setConnectivity forces the terminal online or offline, overriding the
// dial-based probe. Used when a terminal is deliberately off-network.
func (h *Handler) setConnectivity(c *gin.Context) {
	var req connectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	h.probe.SetOnline(*req.Online)
	c.JSON(http.StatusOK, gin.H{"online": h.probe.Online(), "forced": true})
}

// clearConnectivity resumes probe-based detection.
func (h *Handler) clearConnectivity(c *gin.Context) {
	h.probe.ClearOverride()
	c.JSON(http.StatusOK, gin.H{"online": h.probe.Online(), "forced": false})
}

// respondError maps workflow errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrProductNotFound), errors.Is(err, models.ErrCartNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrOutOfStock), errors.Is(err, models.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrPaymentFailed):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
