package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"imagify/config"
	"imagify/internal/domain"
	"imagify/internal/models"
	"imagify/internal/repository"
	"imagify/pkg/cashfree"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrMissingDetails   = errors.New("missing details")
	ErrUserNotFound     = errors.New("user not found")
	ErrPaymentNotFound  = errors.New("payment record not found")
	ErrAlreadyProcessed = errors.New("payment already processed")
	ErrNotVerified      = errors.New("payment verification failed")
)

// paymentStore is the slice of PaymentRepository the reconciler needs.
type paymentStore interface {
	Create(p *models.Payment) error
	GetByOrderID(orderID string) (*models.Payment, error)
	GetByOrderIDAndUser(orderID string, userID uint) (*models.Payment, error)
	MarkCompleted(orderID, transactionID string) (*models.Payment, error)
	MarkFailed(orderID string) error
}

// creditLedger is the slice of UserRepository the reconciler needs.
type creditLedger interface {
	GetByID(id uint) (*models.User, error)
	IncrementCredits(userID uint, delta int64) error
}

type gateway interface {
	IsConfigured() bool
	CreateOrder(ctx context.Context, req cashfree.CreateOrderRequest) (*cashfree.CreateOrderResponse, error)
	GetOrderStatus(ctx context.Context, orderID string) cashfree.OrderStatus
}

// PaymentService reconciles payment state between the local record store and
// the gateway. Confirmation arrives from three independent triggers (gateway
// webhook, client status poll, manual verification) that may race on the same
// order; whichever wins the store's conditional pending->completed update is
// the only one that grants credits.
type PaymentService struct {
	cfg      *config.Config
	payments paymentStore
	users    creditLedger
	gateway  gateway
}

func NewPaymentService(cfg *config.Config, payments paymentStore, users creditLedger, gw gateway) *PaymentService {
	return &PaymentService{cfg: cfg, payments: payments, users: users, gateway: gw}
}

// ManualPaymentDetails are shown to the user when no gateway is configured.
type ManualPaymentDetails struct {
	OrderID      string  `json:"orderId"`
	Amount       float64 `json:"amount"`
	PlanID       string  `json:"planId"`
	Credits      int64   `json:"credits"`
	Instructions string  `json:"instructions"`
	UPIID        string  `json:"upiId"`
	BankDetails  string  `json:"bankDetails"`
}

type IntentResult struct {
	OrderID          string
	PaymentSessionID string
	PaymentLink      string
	ManualPayment    bool
	PaymentDetails   *ManualPaymentDetails
}

// CreateIntent starts a purchase: it registers an order with the gateway (or
// falls back to manual payment instructions when the gateway is unconfigured)
// and persists a pending record keyed by a locally generated order id.
func (s *PaymentService) CreateIntent(ctx context.Context, userID uint, planID string, credits int64, amount float64) (*IntentResult, error) {
	if userID == 0 || planID == "" || credits <= 0 || amount <= 0 {
		return nil, ErrMissingDetails
	}
	user, err := s.users.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	orderID := fmt.Sprintf("order_%s", uuid.New().String())

	if !s.gateway.IsConfigured() {
		// No gateway credentials: record the attempt so a later manual
		// verification has a pending record to transition.
		record := &models.Payment{
			OrderID:  orderID,
			UserID:   userID,
			PlanID:   planID,
			Credits:  credits,
			Amount:   amount,
			Currency: domain.Currency,
			Status:   domain.PaymentStatusPending,
		}
		if err := s.payments.Create(record); err != nil {
			return nil, err
		}
		return &IntentResult{
			OrderID:       orderID,
			ManualPayment: true,
			PaymentDetails: &ManualPaymentDetails{
				OrderID:      orderID,
				Amount:       amount,
				PlanID:       planID,
				Credits:      credits,
				Instructions: "Please make the payment and contact support with your transaction ID to receive credits.",
				UPIID:        s.cfg.Cashfree.UPIID,
				BankDetails:  s.cfg.Cashfree.BankDetails,
			},
		}, nil
	}

	resp, err := s.gateway.CreateOrder(ctx, cashfree.CreateOrderRequest{
		OrderID:  orderID,
		Amount:   amount,
		Currency: domain.Currency,
		Customer: cashfree.Customer{
			ID:    fmt.Sprintf("%d", userID),
			Name:  user.Name,
			Email: user.Email,
		},
		ReturnURL: s.cfg.Server.FrontendURL + "/payment-success?order_id={order_id}&order_token={order_token}",
		NotifyURL: s.cfg.Server.BackendURL + "/api/payment/webhook",
	})
	if err != nil {
		log.Printf("[Payment] create order failed for user=%d plan=%s: %v", userID, planID, err)
		return nil, err
	}
	record := &models.Payment{
		OrderID:  orderID,
		UserID:   userID,
		PlanID:   planID,
		Credits:  credits,
		Amount:   amount,
		Currency: domain.Currency,
		Status:   domain.PaymentStatusPending,
	}
	if err := s.payments.Create(record); err != nil {
		return nil, err
	}
	return &IntentResult{
		OrderID:          orderID,
		PaymentSessionID: resp.PaymentSessionID,
		PaymentLink:      resp.PaymentLink,
	}, nil
}

// HandleWebhook processes a gateway callback for orderID. PAID confirmations
// attempt the guarded pending->completed transition and credit the user only
// when this caller won it; redelivered webhooks for a completed record are a
// no-op success. The transition always happens before the balance increment —
// losing the transition means another trigger already credited the user.
func (s *PaymentService) HandleWebhook(orderID string, status cashfree.OrderStatus) error {
	record, err := s.payments.GetByOrderID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPaymentNotFound
		}
		return err
	}

	switch status {
	case cashfree.StatusPaid:
		if record.Status == domain.PaymentStatusCompleted {
			log.Printf("[Webhook] order_id=%s already completed, ignoring redelivery", orderID)
			return nil
		}
		completed, err := s.payments.MarkCompleted(orderID, "")
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyCompleted) {
				// Another trigger won the transition and already credited.
				return nil
			}
			if errors.Is(err, repository.ErrNotPending) {
				return ErrNotVerified
			}
			return err
		}
		if err := s.users.IncrementCredits(completed.UserID, completed.Credits); err != nil {
			log.Printf("[Webhook] CREDIT FAILED after completing order_id=%s user=%d credits=%d: %v", orderID, completed.UserID, completed.Credits, err)
			return err
		}
		log.Printf("[Webhook] order_id=%s completed, credited %d to user %d", orderID, completed.Credits, completed.UserID)
		return nil
	case cashfree.StatusFailed:
		if err := s.payments.MarkFailed(orderID); err != nil && !errors.Is(err, repository.ErrNotPending) {
			return err
		}
		return ErrNotVerified
	default:
		return ErrNotVerified
	}
}

type StatusResult struct {
	Paid    bool
	Status  string
	Credits int64
	Message string
}

// CheckStatus serves the client poll after redirect. A completed record is
// answered from local state without touching the gateway; a pending one is
// reconciled against the gateway's reported status, degrading to the stored
// status when the gateway is unreachable or unconfigured.
func (s *PaymentService) CheckStatus(ctx context.Context, orderID string, userID uint) (*StatusResult, error) {
	if orderID == "" || userID == 0 {
		return nil, ErrMissingDetails
	}
	record, err := s.payments.GetByOrderIDAndUser(orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	if record.Status == domain.PaymentStatusCompleted {
		return s.paidResult(userID, "Payment already processed")
	}
	if record.Status == domain.PaymentStatusFailed {
		return &StatusResult{Status: record.Status, Message: "Payment not completed"}, nil
	}

	if !s.gateway.IsConfigured() {
		return &StatusResult{Status: record.Status, Message: "Payment pending verification"}, nil
	}

	switch s.gateway.GetOrderStatus(ctx, orderID) {
	case cashfree.StatusPaid:
		completed, err := s.payments.MarkCompleted(orderID, "")
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyCompleted) {
				// A webhook beat this poll; the credits are already granted.
				return s.paidResult(userID, "Payment already processed")
			}
			if errors.Is(err, repository.ErrNotPending) {
				return &StatusResult{Status: domain.PaymentStatusFailed, Message: "Payment not completed"}, nil
			}
			return nil, err
		}
		if err := s.users.IncrementCredits(completed.UserID, completed.Credits); err != nil {
			log.Printf("[Payment] CREDIT FAILED after completing order_id=%s user=%d credits=%d: %v", orderID, completed.UserID, completed.Credits, err)
			return nil, err
		}
		return s.paidResult(userID, "Payment successful")
	case cashfree.StatusFailed:
		if err := s.payments.MarkFailed(orderID); err != nil && !errors.Is(err, repository.ErrNotPending) {
			return nil, err
		}
		return &StatusResult{Status: domain.PaymentStatusFailed, Message: "Payment not completed"}, nil
	default:
		// PENDING from the gateway, or UNKNOWN when it is unreachable: report
		// the locally stored status rather than failing the poll.
		return &StatusResult{Status: record.Status, Message: "Payment not completed"}, nil
	}
}

// VerifyManual is the support-triggered confirmation for gateway-less flows.
// The record's credits are authoritative; the caller-supplied count only
// confirms intent. A second confirmation reports ErrAlreadyProcessed.
func (s *PaymentService) VerifyManual(orderID string, userID uint, credits int64, transactionID string) (*StatusResult, error) {
	if orderID == "" || userID == 0 || credits <= 0 {
		return nil, ErrMissingDetails
	}
	if _, err := s.payments.GetByOrderIDAndUser(orderID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	completed, err := s.payments.MarkCompleted(orderID, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyCompleted) {
			return nil, ErrAlreadyProcessed
		}
		if errors.Is(err, repository.ErrNotPending) {
			return nil, ErrNotVerified
		}
		return nil, err
	}
	if err := s.users.IncrementCredits(completed.UserID, completed.Credits); err != nil {
		log.Printf("[Payment] CREDIT FAILED after manual verify order_id=%s user=%d credits=%d: %v", orderID, completed.UserID, completed.Credits, err)
		return nil, err
	}
	log.Printf("[Payment] manual verify order_id=%s txn=%s credited %d to user %d", orderID, transactionID, completed.Credits, completed.UserID)
	return s.paidResult(userID, "Payment verified and credits added")
}

func (s *PaymentService) paidResult(userID uint, message string) (*StatusResult, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		Paid:    true,
		Status:  domain.PaymentStatusCompleted,
		Credits: user.CreditBalance,
		Message: message,
	}, nil
}
