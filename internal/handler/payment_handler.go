package handler

import (
	"errors"
	"net/http"

	"imagify/internal/middleware"
	"imagify/internal/service"
	"imagify/pkg/cashfree"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentSvc *service.PaymentService
}

func NewPaymentHandler(paymentSvc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// Pay creates a payment intent for a credit plan. When the gateway is not
// configured the response carries manual payment instructions instead of a
// checkout session.
func (h *PaymentHandler) Pay(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req struct {
		PlanID  string  `json:"planId"`
		Credits int64   `json:"credits"`
		Amount  float64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}
	res, err := h.paymentSvc.CreateIntent(c.Request.Context(), userID, req.PlanID, req.Credits, req.Amount)
	if err != nil {
		var apiErr *cashfree.APIError
		switch {
		case errors.Is(err, service.ErrMissingDetails):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Missing Details"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "User not found"})
		case errors.As(err, &apiErr):
			msg := apiErr.Message
			if msg == "" {
				msg = "Failed to create payment link"
			}
			c.JSON(http.StatusOK, gin.H{"success": false, "message": msg})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to create payment link"})
		}
		return
	}
	if res.ManualPayment {
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"manualPayment":  true,
			"paymentDetails": res.PaymentDetails,
			"message":        "Payment gateway not configured. Manual payment option available.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"orderId":          res.OrderID,
		"paymentSessionId": res.PaymentSessionID,
		"paymentLink":      res.PaymentLink,
		"message":          "Payment link created successfully",
	})
}

// Status serves the client poll after checkout redirect.
func (h *PaymentHandler) Status(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}
	res, err := h.paymentSvc.CheckStatus(c.Request.Context(), req.OrderID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingDetails):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Missing Details"})
		case errors.Is(err, service.ErrPaymentNotFound):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Payment record not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Payment status check failed"})
		}
		return
	}
	if res.Paid {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": res.Message, "credits": res.Credits})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": false, "message": res.Message, "status": res.Status})
}

// VerifyManual confirms a manual (gateway-less) payment. Support staff may pass
// an explicit userId to act on a customer's behalf; it defaults to the caller.
func (h *PaymentHandler) VerifyManual(c *gin.Context) {
	callerID := middleware.GetUserID(c)
	var req struct {
		OrderID       string `json:"order_id"`
		TransactionID string `json:"transaction_id"`
		UserID        uint   `json:"userId"`
		Credits       int64  `json:"credits"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}
	userID := req.UserID
	if userID == 0 {
		userID = callerID
	}
	res, err := h.paymentSvc.VerifyManual(req.OrderID, userID, req.Credits, req.TransactionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingDetails):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Missing Details"})
		case errors.Is(err, service.ErrPaymentNotFound):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Payment record not found"})
		case errors.Is(err, service.ErrAlreadyProcessed):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Payment already processed"})
		case errors.Is(err, service.ErrNotVerified):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Payment verification failed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Payment verification failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": res.Message, "credits": res.Credits})
}
