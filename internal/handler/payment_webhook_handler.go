package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"imagify/internal/service"
	"imagify/pkg/cashfree"

	"github.com/gin-gonic/gin"
)

// cashfreeWebhook is the callback payload. Cashfree has sent both a flat
// {order_id, order_status} body and a nested data envelope depending on the
// webhook version, so both shapes are accepted.
type cashfreeWebhook struct {
	OrderID     string `json:"order_id"`
	OrderStatus string `json:"order_status"`
	Data        struct {
		Order struct {
			OrderID string `json:"order_id"`
		} `json:"order"`
		Payment struct {
			PaymentStatus string `json:"payment_status"`
		} `json:"payment"`
	} `json:"data"`
}

type PaymentWebhookHandler struct {
	paymentSvc *service.PaymentService
}

func NewPaymentWebhookHandler(paymentSvc *service.PaymentService) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{paymentSvc: paymentSvc}
}

// Handle processes the gateway callback. Webhooks may be redelivered; a
// confirmation for an already completed order is acknowledged as success.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid body"})
		return
	}
	var payload cashfreeWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("[Webhook] json unmarshal error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid json"})
		return
	}
	orderID := payload.OrderID
	if orderID == "" {
		orderID = payload.Data.Order.OrderID
	}
	rawStatus := payload.OrderStatus
	if rawStatus == "" {
		rawStatus = payload.Data.Payment.PaymentStatus
	}
	log.Printf("[Webhook] order_id=%s status=%s", orderID, rawStatus)
	if orderID == "" {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Payment record not found"})
		return
	}

	err = h.paymentSvc.HandleWebhook(orderID, cashfree.ParseOrderStatus(rawStatus))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment verified and credits added"})
	case errors.Is(err, service.ErrPaymentNotFound):
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Payment record not found"})
	case errors.Is(err, service.ErrNotVerified):
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Payment verification failed"})
	default:
		log.Printf("[Webhook] processing failed for order_id=%s: %v", orderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "webhook processing failed"})
	}
}
