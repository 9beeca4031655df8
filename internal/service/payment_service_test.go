package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"imagify/config"
	"imagify/internal/domain"
	"imagify/internal/models"
	"imagify/internal/repository"
	"imagify/pkg/cashfree"

	"gorm.io/gorm"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*models.Payment
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.Payment)}
}

func (s *fakeStore) Create(p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[p.OrderID]; ok {
		return repository.ErrDuplicateOrder
	}
	cp := *p
	s.records[p.OrderID] = &cp
	return nil
}

func (s *fakeStore) GetByOrderID(orderID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) GetByOrderIDAndUser(orderID string, userID uint) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[orderID]
	if !ok || p.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

// MarkCompleted mirrors the repository's conditional UPDATE: the whole
// check-and-set happens under one lock, so concurrent callers see exactly one
// winner.
func (s *fakeStore) MarkCompleted(orderID, transactionID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	switch p.Status {
	case domain.PaymentStatusPending:
		now := time.Now()
		p.Status = domain.PaymentStatusCompleted
		p.CompletedAt = &now
		if transactionID != "" {
			p.TransactionID = transactionID
		}
		cp := *p
		return &cp, nil
	case domain.PaymentStatusCompleted:
		return nil, repository.ErrAlreadyCompleted
	default:
		return nil, repository.ErrNotPending
	}
}

func (s *fakeStore) MarkFailed(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[orderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if p.Status != domain.PaymentStatusPending {
		return repository.ErrNotPending
	}
	p.Status = domain.PaymentStatusFailed
	return nil
}

type fakeLedger struct {
	mu         sync.Mutex
	users      map[uint]*models.User
	increments int
}

func newFakeLedger(users ...*models.User) *fakeLedger {
	l := &fakeLedger{users: make(map[uint]*models.User)}
	for _, u := range users {
		cp := *u
		l.users[u.ID] = &cp
	}
	return l
}

func (l *fakeLedger) GetByID(id uint) (*models.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (l *fakeLedger) IncrementCredits(userID uint, delta int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.CreditBalance += delta
	l.increments++
	return nil
}

func (l *fakeLedger) balance(userID uint) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users[userID].CreditBalance
}

func (l *fakeLedger) incrementCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.increments
}

type fakeGateway struct {
	mu          sync.Mutex
	configured  bool
	status      cashfree.OrderStatus
	createResp  *cashfree.CreateOrderResponse
	createErr   error
	createCalls int
	statusCalls int
}

func (g *fakeGateway) IsConfigured() bool { return g.configured }

func (g *fakeGateway) CreateOrder(ctx context.Context, req cashfree.CreateOrderRequest) (*cashfree.CreateOrderResponse, error) {
	g.mu.Lock()
	g.createCalls++
	g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	if g.createResp != nil {
		return g.createResp, nil
	}
	return &cashfree.CreateOrderResponse{
		OrderID:          req.OrderID,
		PaymentSessionID: "session_abc",
		PaymentLink:      "https://payments.example/session_abc",
	}, nil
}

func (g *fakeGateway) GetOrderStatus(ctx context.Context, orderID string) cashfree.OrderStatus {
	g.mu.Lock()
	g.statusCalls++
	g.mu.Unlock()
	return g.status
}

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Cashfree.UPIID = "merchant@upi"
	cfg.Cashfree.BankDetails = "Test Bank 000111"
	return cfg
}

func newTestService(store *fakeStore, ledger *fakeLedger, gw *fakeGateway) *PaymentService {
	return NewPaymentService(testConfig(), store, ledger, gw)
}

func pendingPayment(orderID string, userID uint, credits int64) *models.Payment {
	return &models.Payment{
		OrderID:  orderID,
		UserID:   userID,
		PlanID:   "basic",
		Credits:  credits,
		Amount:   500,
		Currency: "INR",
		Status:   domain.PaymentStatusPending,
	}
}

func TestCreateIntent_MissingDetails(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeLedger(), &fakeGateway{configured: true})
	cases := []struct {
		name    string
		userID  uint
		planID  string
		credits int64
		amount  float64
	}{
		{"no user", 0, "basic", 100, 500},
		{"no plan", 1, "", 100, 500},
		{"zero credits", 1, "basic", 0, 500},
		{"negative amount", 1, "basic", 100, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateIntent(context.Background(), tc.userID, tc.planID, tc.credits, tc.amount)
			if !errors.Is(err, ErrMissingDetails) {
				t.Fatalf("expected ErrMissingDetails, got %v", err)
			}
		})
	}
}

func TestCreateIntent_UserNotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeLedger(), &fakeGateway{configured: true})
	_, err := svc.CreateIntent(context.Background(), 42, "basic", 100, 500)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateIntent_CreatesPendingRecord(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1, Name: "Asha", Email: "asha@example.com"})
	gw := &fakeGateway{configured: true}
	svc := newTestService(store, ledger, gw)

	res, err := svc.CreateIntent(context.Background(), 1, "basic", 100, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ManualPayment {
		t.Fatalf("expected gateway flow, got manual payment")
	}
	if res.PaymentSessionID != "session_abc" {
		t.Errorf("session id mismatch: %q", res.PaymentSessionID)
	}
	if gw.createCalls != 1 {
		t.Errorf("expected 1 gateway order, got %d", gw.createCalls)
	}
	p, err := store.GetByOrderID(res.OrderID)
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if p.Status != domain.PaymentStatusPending {
		t.Errorf("expected pending record, got %q", p.Status)
	}
	if p.Credits != 100 || p.Amount != 500 || p.PlanID != "basic" || p.UserID != 1 {
		t.Errorf("record fields mismatch: %+v", p)
	}
}

func TestCreateIntent_GatewayErrorNoRecord(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1})
	gw := &fakeGateway{configured: true, createErr: &cashfree.APIError{StatusCode: 400, Message: "order rejected"}}
	svc := newTestService(store, ledger, gw)

	_, err := svc.CreateIntent(context.Background(), 1, "basic", 100, 500)
	var apiErr *cashfree.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if len(store.records) != 0 {
		t.Errorf("no record should be created when the gateway rejects the order")
	}
}

func TestCreateIntent_UnconfiguredGatewayManualFlow(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1, Name: "Asha"})
	gw := &fakeGateway{configured: false}
	svc := newTestService(store, ledger, gw)

	res, err := svc.CreateIntent(context.Background(), 1, "basic", 100, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.ManualPayment || res.PaymentDetails == nil {
		t.Fatalf("expected manual payment details, got %+v", res)
	}
	if gw.createCalls != 0 {
		t.Errorf("no gateway order should be created, got %d calls", gw.createCalls)
	}
	if res.PaymentDetails.UPIID != "merchant@upi" {
		t.Errorf("upi id mismatch: %q", res.PaymentDetails.UPIID)
	}
	p, err := store.GetByOrderID(res.OrderID)
	if err != nil {
		t.Fatalf("manual flow must still create a pending record: %v", err)
	}
	if p.Status != domain.PaymentStatusPending {
		t.Errorf("expected pending record, got %q", p.Status)
	}
}

func TestHandleWebhook_PaidCreditsExactlyOnce(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1, CreditBalance: 5})
	svc := newTestService(store, ledger, &fakeGateway{configured: true})
	if err := store.Create(pendingPayment("order_123", 1, 100)); err != nil {
		t.Fatal(err)
	}

	if err := svc.HandleWebhook("order_123", cashfree.StatusPaid); err != nil {
		t.Fatalf("first webhook: %v", err)
	}
	if got := ledger.balance(1); got != 105 {
		t.Fatalf("balance after first webhook = %d, want 105", got)
	}
	p, _ := store.GetByOrderID("order_123")
	if p.Status != domain.PaymentStatusCompleted {
		t.Fatalf("record status = %q, want completed", p.Status)
	}

	// Redelivery is a no-op success.
	if err := svc.HandleWebhook("order_123", cashfree.StatusPaid); err != nil {
		t.Fatalf("redelivered webhook must succeed, got %v", err)
	}
	if got := ledger.balance(1); got != 105 {
		t.Errorf("balance after redelivery = %d, want 105", got)
	}
	if n := ledger.incrementCount(); n != 1 {
		t.Errorf("increments = %d, want 1", n)
	}
}

func TestHandleWebhook_NotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeLedger(), &fakeGateway{configured: true})
	if err := svc.HandleWebhook("order_missing", cashfree.StatusPaid); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestHandleWebhook_FailedReportLeavesBalance(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1, CreditBalance: 5})
	svc := newTestService(store, ledger, &fakeGateway{configured: true})
	if err := store.Create(pendingPayment("order_123", 1, 100)); err != nil {
		t.Fatal(err)
	}

	err := svc.HandleWebhook("order_123", cashfree.StatusFailed)
	if !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}
	p, _ := store.GetByOrderID("order_123")
	if p.Status != domain.PaymentStatusFailed {
		t.Errorf("record status = %q, want failed", p.Status)
	}
	if got := ledger.balance(1); got != 5 {
		t.Errorf("balance = %d, want untouched 5", got)
	}

	// A PAID webhook arriving after failure must not credit.
	if err := svc.HandleWebhook("order_123", cashfree.StatusPaid); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified for failed record, got %v", err)
	}
	if got := ledger.balance(1); got != 5 {
		t.Errorf("balance = %d, want untouched 5", got)
	}
}

func TestHandleWebhook_ConcurrentDeliveriesCreditOnce(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1})
	svc := newTestService(store, ledger, &fakeGateway{configured: true})
	if err := store.Create(pendingPayment("order_123", 1, 100)); err != nil {
		t.Fatal(err)
	}

	const deliveries = 25
	var wg sync.WaitGroup
	wg.Add(deliveries)
	for i := 0; i < deliveries; i++ {
		go func() {
			defer wg.Done()
			_ = svc.HandleWebhook("order_123", cashfree.StatusPaid)
		}()
	}
	wg.Wait()

	if got := ledger.balance(1); got != 100 {
		t.Errorf("balance = %d, want exactly 100", got)
	}
	if n := ledger.incrementCount(); n != 1 {
		t.Errorf("increments = %d, want exactly 1", n)
	}
}

func TestCheckStatus_CompletedSkipsGateway(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1, CreditBalance: 105})
	gw := &fakeGateway{configured: true, status: cashfree.StatusPaid}
	svc := newTestService(store, ledger, gw)
	p := pendingPayment("order_123", 1, 100)
	p.Status = domain.PaymentStatusCompleted
	if err := store.Create(p); err != nil {
		t.Fatal(err)
	}

	res, err := svc.CheckStatus(context.Background(), "order_123", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Paid || res.Credits != 105 {
		t.Errorf("unexpected result: %+v", res)
	}
	if gw.statusCalls != 0 {
		t.Errorf("completed record must not hit the gateway, got %d calls", gw.statusCalls)
	}
}

func TestCheckStatus_PendingPaidCredits(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1})
	gw := &fakeGateway{configured: true, status: cashfree.StatusPaid}
	svc := newTestService(store, ledger, gw)
	if err := store.Create(pendingPayment("order_123", 1, 100)); err != nil {
		t.Fatal(err)
	}

	res, err := svc.CheckStatus(context.Background(), "order_123", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Paid || res.Credits != 100 {
		t.Errorf("unexpected result: %+v", res)
	}
	p, _ := store.GetByOrderID("order_123")
	if p.Status != domain.PaymentStatusCompleted {
		t.Errorf("record status = %q, want completed", p.Status)
	}
}

func TestCheckStatus_GatewayUnreachableFallsBackToStored(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1})
	gw := &fakeGateway{configured: true, status: cashfree.StatusUnknown}
	svc := newTestService(store, ledger, gw)
	if err := store.Create(pendingPayment("order_123", 1, 100)); err != nil {
		t.Fatal(err)
	}

	res, err := svc.CheckStatus(context.Background(), "order_123", 1)
	if err != nil {
		t.Fatalf("gateway outage must not fail the poll: %v", err)
	}
	if res.Paid || res.Status != domain.PaymentStatusPending {
		t.Errorf("unexpected result: %+v", res)
	}
	if got := ledger.balance(1); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestCheckStatus_OtherUsersOrderNotVisible(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1}, &models.User{ID: 2})
	svc := newTestService(store, ledger, &fakeGateway{configured: true})
	if err := store.Create(pendingPayment("order_123", 1, 100)); err != nil {
		t.Fatal(err)
	}

	_, err := svc.CheckStatus(context.Background(), "order_123", 2)
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound for cross-account lookup, got %v", err)
	}
}

func TestVerifyManual_CompletesOnce(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1, CreditBalance: 5})
	svc := newTestService(store, ledger, &fakeGateway{})
	if err := store.Create(pendingPayment("order_123", 1, 100)); err != nil {
		t.Fatal(err)
	}

	res, err := svc.VerifyManual("order_123", 1, 100, "TXN42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Credits != 105 {
		t.Errorf("credits = %d, want 105", res.Credits)
	}
	p, _ := store.GetByOrderID("order_123")
	if p.TransactionID != "TXN42" {
		t.Errorf("transaction id = %q, want TXN42", p.TransactionID)
	}

	_, err = svc.VerifyManual("order_123", 1, 100, "TXN42")
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if got := ledger.balance(1); got != 105 {
		t.Errorf("balance = %d, want 105", got)
	}
}

func TestVerifyManual_RecordCreditsAreAuthoritative(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1})
	svc := newTestService(store, ledger, &fakeGateway{})
	if err := store.Create(pendingPayment("order_123", 1, 100)); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.VerifyManual("order_123", 1, 9999, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ledger.balance(1); got != 100 {
		t.Errorf("balance = %d, want the record's 100 not the request's 9999", got)
	}
}

func TestVerifyManual_MissingDetails(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeLedger(), &fakeGateway{})
	if _, err := svc.VerifyManual("", 1, 100, ""); !errors.Is(err, ErrMissingDetails) {
		t.Fatalf("expected ErrMissingDetails, got %v", err)
	}
	if _, err := svc.VerifyManual("order_123", 1, 0, ""); !errors.Is(err, ErrMissingDetails) {
		t.Fatalf("expected ErrMissingDetails, got %v", err)
	}
}

// All three confirmation triggers racing on one order must produce exactly one
// credit grant, no matter which trigger wins.
func TestMixedTriggersConcurrent_CreditExactlyOnce(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(&models.User{ID: 1})
	gw := &fakeGateway{configured: true, status: cashfree.StatusPaid}
	svc := newTestService(store, ledger, gw)
	if err := store.Create(pendingPayment("order_123", 1, 100)); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = svc.HandleWebhook("order_123", cashfree.StatusPaid)
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.CheckStatus(context.Background(), "order_123", 1)
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.VerifyManual("order_123", 1, 100, "TXN")
		}()
	}
	wg.Wait()

	if got := ledger.balance(1); got != 100 {
		t.Errorf("balance = %d, want exactly 100", got)
	}
	if n := ledger.incrementCount(); n != 1 {
		t.Errorf("increments = %d, want exactly 1", n)
	}
}
