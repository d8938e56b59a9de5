package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shamtarani05/aeglekart-orders/internal/infrastructure/payment"
	"github.com/shamtarani05/aeglekart-orders/internal/service"
)

const maxWebhookBody = 1 << 20 // 1MB

type WebhookHandler struct {
	webhooks  service.WebhookService
	secret    string
	tolerance time.Duration
	logger    *zap.Logger
}

func NewWebhookHandler(webhooks service.WebhookService, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhooks:  webhooks,
		secret:    secret,
		tolerance: payment.DefaultTolerance,
		logger:    logger,
	}
}

// Receive handles POST /webhook. The signature check runs over the raw body
// before anything is decoded; a bad signature gets a 400 and touches no
// state. Once verification passes the delivery is always acknowledged with
// 200 regardless of business outcome, because the processor's retries
// cannot fix an unknown order.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	evt, err := payment.VerifyEvent(body, c.GetHeader(payment.SignatureHeader), h.secret, h.tolerance)
	if err != nil {
		h.logger.Warn("webhook signature rejected",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	if err := h.webhooks.HandleEvent(c.Request.Context(), evt); err != nil {
		// Business errors are logged and swallowed; the delivery is
		// still acknowledged.
		h.logger.Error("webhook event processing failed",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
