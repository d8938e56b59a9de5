package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shamtarani05/aeglekart-orders/internal/domain"
	"github.com/shamtarani05/aeglekart-orders/internal/middleware"
	"github.com/shamtarani05/aeglekart-orders/internal/service"
)

type CheckoutHandler struct {
	checkout service.CheckoutService
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, logger: logger}
}

type checkoutItemRequest struct {
	Name       string `json:"name" binding:"required"`
	UnitAmount int64  `json:"unit_amount" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
	ImageRef   string `json:"image_ref"`
}

type checkoutDiscountRequest struct {
	Code  string `json:"code" binding:"required"`
	Kind  string `json:"kind" binding:"required"`
	Value int64  `json:"value"`
}

type createSessionRequest struct {
	Items      []checkoutItemRequest    `json:"items" binding:"required,min=1"`
	Discount   *checkoutDiscountRequest `json:"discount"`
	SuccessURL string                   `json:"success_url" binding:"required"`
	CancelURL  string                   `json:"cancel_url" binding:"required"`
	Metadata   map[string]string        `json:"metadata"`
}

// CreateSession handles POST /checkout-session. The customer email comes
// from the authenticated identity, not the request body.
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	identity := middleware.IdentityFrom(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.OrderItem{
			Name:       it.Name,
			UnitAmount: it.UnitAmount,
			Quantity:   it.Quantity,
			ImageRef:   it.ImageRef,
		})
	}

	var discount *domain.Discount
	if req.Discount != nil {
		discount = &domain.Discount{
			Code:  req.Discount.Code,
			Kind:  domain.DiscountKind(req.Discount.Kind),
			Value: req.Discount.Value,
		}
	}

	result, err := h.checkout.CreateSession(c.Request.Context(), service.CheckoutRequest{
		Items:         items,
		Discount:      discount,
		CustomerEmail: identity.Email,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
		Metadata:      req.Metadata,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("checkout session creation failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create checkout session. Please try again."})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"sessionId": result.SessionID,
		"orderId":   result.OrderID,
	})
}
