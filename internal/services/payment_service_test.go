package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/payments"
)

type stubAttemptRepo struct {
	insertFn      func(context.Context, domain.PaymentAttempt) error
	updateFn      func(context.Context, domain.PaymentAttempt) error
	findFn        func(context.Context, string) (domain.PaymentAttempt, error)
	listPendingFn func(context.Context, time.Time, int) ([]domain.PaymentAttempt, error)
}

func (s *stubAttemptRepo) Insert(ctx context.Context, attempt domain.PaymentAttempt) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, attempt)
	}
	return nil
}

func (s *stubAttemptRepo) Update(ctx context.Context, attempt domain.PaymentAttempt) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, attempt)
	}
	return nil
}

func (s *stubAttemptRepo) FindByChargeID(ctx context.Context, chargeID string) (domain.PaymentAttempt, error) {
	if s.findFn != nil {
		return s.findFn(ctx, chargeID)
	}
	return domain.PaymentAttempt{}, errors.New("not implemented")
}

func (s *stubAttemptRepo) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.PaymentAttempt, error) {
	if s.listPendingFn != nil {
		return s.listPendingFn(ctx, olderThan, limit)
	}
	return nil, nil
}

type stubGatewayProvider struct {
	createFn func(context.Context, payments.ChargeRequest) (payments.Charge, error)
	verifyFn func(context.Context, payments.VerifyOTPRequest) (payments.Charge, error)
	lookupFn func(context.Context, string) (payments.Charge, error)
}

func (s *stubGatewayProvider) CreateCharge(ctx context.Context, req payments.ChargeRequest) (payments.Charge, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return payments.Charge{}, errors.New("not implemented")
}

func (s *stubGatewayProvider) VerifyOTP(ctx context.Context, req payments.VerifyOTPRequest) (payments.Charge, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, req)
	}
	return payments.Charge{}, errors.New("not implemented")
}

func (s *stubGatewayProvider) LookupCharge(ctx context.Context, chargeID string) (payments.Charge, error) {
	if s.lookupFn != nil {
		return s.lookupFn(ctx, chargeID)
	}
	return payments.Charge{}, errors.New("not implemented")
}

type stubOrderService struct {
	getFn      func(context.Context, string) (Order, error)
	markPaidFn func(context.Context, MarkOrderPaidCommand) (Order, error)
}

func (s *stubOrderService) Create(context.Context, CreateOrderCommand) (Order, error) {
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Get(ctx context.Context, orderID string) (Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) List(context.Context, OrderListFilter) (domain.CursorPage[Order], error) {
	return domain.CursorPage[Order]{}, errors.New("not implemented")
}

func (s *stubOrderService) Update(context.Context, UpdateOrderCommand) (Order, error) {
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) TransitionStatus(context.Context, OrderStatusTransitionCommand) (Order, error) {
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error) {
	if s.markPaidFn != nil {
		return s.markPaidFn(ctx, cmd)
	}
	return Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Delete(context.Context, DeleteOrderCommand) error {
	return errors.New("not implemented")
}

func (s *stubOrderService) Stats(context.Context) (OrderStats, error) {
	return OrderStats{}, errors.New("not implemented")
}

func newTestGateway(t *testing.T, provider payments.Provider) *payments.Manager {
	t.Helper()
	manager, err := payments.NewManager(map[string]payments.Provider{"tap": provider})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager
}

func TestPaymentServiceInitiateWalletPayment(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 10, 11, 0, 0, 0, time.UTC)
	var inserted domain.PaymentAttempt

	orders := &stubOrderService{
		getFn: func(_ context.Context, id string) (Order, error) {
			return Order{
				ID:          id,
				OrderNumber: "SL00042",
				Total:       578,
				Currency:    "SAR",
				Customer:    CustomerInfo{Name: "Sara", Email: "sara@example.com", Phone: "+966501111111"},
			}, nil
		},
	}
	provider := &stubGatewayProvider{
		createFn: func(_ context.Context, req payments.ChargeRequest) (payments.Charge, error) {
			if req.Amount != 578 || req.Currency != "SAR" {
				t.Fatalf("unexpected charge amount %d %s", req.Amount, req.Currency)
			}
			if req.WalletPhone != "+966502222222" {
				t.Fatalf("unexpected wallet phone %s", req.WalletPhone)
			}
			if req.Metadata["order_id"] != "ord_1" {
				t.Fatalf("expected order id in metadata got %v", req.Metadata)
			}
			return payments.Charge{ID: "chg_abc", Status: payments.StatusInitiated, Amount: 578, Currency: "SAR"}, nil
		},
	}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders: orders,
		Attempts: &stubAttemptRepo{
			insertFn: func(_ context.Context, attempt domain.PaymentAttempt) error {
				inserted = attempt
				return nil
			},
		},
		Gateway:     newTestGateway(t, provider),
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "000TEST" },
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	attempt, err := svc.InitiateWalletPayment(ctx, InitiateWalletPaymentCommand{
		OrderID: "ord_1",
		Phone:   "+966502222222",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if attempt.ID != "pay_000TEST" {
		t.Fatalf("unexpected attempt id %s", attempt.ID)
	}
	if attempt.State != domain.PaymentAttemptOTPSent {
		t.Fatalf("expected otp_sent got %s", attempt.State)
	}
	if attempt.Gateway != "tap" {
		t.Fatalf("expected provider tap got %s", attempt.Gateway)
	}
	if inserted.ChargeID != "chg_abc" || inserted.OrderID != "ord_1" {
		t.Fatalf("unexpected stored attempt %+v", inserted)
	}
}

func TestPaymentServiceInitiateRejectsPaidOrder(t *testing.T) {
	ctx := context.Background()
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders: &stubOrderService{
			getFn: func(_ context.Context, id string) (Order, error) {
				return Order{ID: id, PaymentState: domain.PaymentStatePaid}, nil
			},
		},
		Attempts: &stubAttemptRepo{},
		Gateway:  newTestGateway(t, &stubGatewayProvider{}),
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	if _, err := svc.InitiateWalletPayment(ctx, InitiateWalletPaymentCommand{
		OrderID: "ord_1",
		Phone:   "+966500000000",
	}); !errors.Is(err, ErrPaymentAlreadyPaid) {
		t.Fatalf("expected already paid got %v", err)
	}
}

func TestPaymentServiceConfirmCaptures(t *testing.T) {
	ctx := context.Background()
	var marked MarkOrderPaidCommand
	var updated domain.PaymentAttempt

	orders := &stubOrderService{
		markPaidFn: func(_ context.Context, cmd MarkOrderPaidCommand) (Order, error) {
			marked = cmd
			return Order{ID: cmd.OrderID}, nil
		},
	}
	provider := &stubGatewayProvider{
		verifyFn: func(_ context.Context, req payments.VerifyOTPRequest) (payments.Charge, error) {
			if req.OTP != "123456" {
				t.Fatalf("unexpected otp %s", req.OTP)
			}
			return payments.Charge{ID: req.ChargeID, Status: payments.StatusCaptured}, nil
		},
	}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders: orders,
		Attempts: &stubAttemptRepo{
			findFn: func(_ context.Context, chargeID string) (domain.PaymentAttempt, error) {
				return domain.PaymentAttempt{
					ChargeID: chargeID,
					OrderID:  "ord_1",
					State:    domain.PaymentAttemptOTPSent,
					Gateway:  "tap",
					Currency: "SAR",
				}, nil
			},
			updateFn: func(_ context.Context, attempt domain.PaymentAttempt) error {
				updated = attempt
				return nil
			},
		},
		Gateway: newTestGateway(t, provider),
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	attempt, err := svc.ConfirmWalletPayment(ctx, ConfirmWalletPaymentCommand{
		ChargeID: "chg_abc",
		OTP:      "123456",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if attempt.State != domain.PaymentAttemptCaptured {
		t.Fatalf("expected captured got %s", attempt.State)
	}
	if updated.State != domain.PaymentAttemptCaptured {
		t.Fatalf("attempt not persisted as captured")
	}
	if marked.OrderID != "ord_1" || marked.Method != domain.PaymentMethodWallet || marked.PaymentRef != "chg_abc" {
		t.Fatalf("unexpected mark paid command %+v", marked)
	}
}

func TestPaymentServiceConfirmRejectsUncaptured(t *testing.T) {
	ctx := context.Background()
	markPaidCalled := false

	provider := &stubGatewayProvider{
		verifyFn: func(_ context.Context, req payments.VerifyOTPRequest) (payments.Charge, error) {
			return payments.Charge{ID: req.ChargeID, Status: payments.StatusDeclined}, nil
		},
	}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders: &stubOrderService{
			markPaidFn: func(_ context.Context, cmd MarkOrderPaidCommand) (Order, error) {
				markPaidCalled = true
				return Order{}, nil
			},
		},
		Attempts: &stubAttemptRepo{
			findFn: func(_ context.Context, chargeID string) (domain.PaymentAttempt, error) {
				return domain.PaymentAttempt{ChargeID: chargeID, OrderID: "ord_1", State: domain.PaymentAttemptOTPSent, Gateway: "tap"}, nil
			},
		},
		Gateway: newTestGateway(t, provider),
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	attempt, err := svc.ConfirmWalletPayment(ctx, ConfirmWalletPaymentCommand{
		ChargeID: "chg_abc",
		OTP:      "999999",
	})
	if !errors.Is(err, ErrPaymentNotCaptured) {
		t.Fatalf("expected not captured got %v", err)
	}
	if attempt.State != domain.PaymentAttemptFailed {
		t.Fatalf("declined charge should fail the attempt, got %s", attempt.State)
	}
	if markPaidCalled {
		t.Fatalf("order must stay unpaid on a declined charge")
	}
}

func TestPaymentServiceConfirmIsIdempotent(t *testing.T) {
	ctx := context.Background()
	verifyCalled := false

	provider := &stubGatewayProvider{
		verifyFn: func(context.Context, payments.VerifyOTPRequest) (payments.Charge, error) {
			verifyCalled = true
			return payments.Charge{}, errors.New("should not be called")
		},
	}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders: &stubOrderService{},
		Attempts: &stubAttemptRepo{
			findFn: func(_ context.Context, chargeID string) (domain.PaymentAttempt, error) {
				return domain.PaymentAttempt{ChargeID: chargeID, State: domain.PaymentAttemptCaptured}, nil
			},
		},
		Gateway: newTestGateway(t, provider),
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	attempt, err := svc.ConfirmWalletPayment(ctx, ConfirmWalletPaymentCommand{
		ChargeID: "chg_abc",
		OTP:      "123456",
	})
	if err != nil {
		t.Fatalf("confirm on captured attempt: %v", err)
	}
	if attempt.State != domain.PaymentAttemptCaptured {
		t.Fatalf("unexpected state %s", attempt.State)
	}
	if verifyCalled {
		t.Fatalf("captured attempts must not hit the gateway again")
	}
}

func TestPaymentServiceConfirmRejectsMalformedOTP(t *testing.T) {
	ctx := context.Background()
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   &stubOrderService{},
		Attempts: &stubAttemptRepo{},
		Gateway:  newTestGateway(t, &stubGatewayProvider{}),
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	if _, err := svc.ConfirmWalletPayment(ctx, ConfirmWalletPaymentCommand{
		ChargeID: "chg_abc",
		OTP:      "12",
	}); !errors.Is(err, ErrOTPMalformed) {
		t.Fatalf("expected malformed otp got %v", err)
	}
}

func TestPaymentServiceWebhookSettlesCharge(t *testing.T) {
	ctx := context.Background()
	var marked MarkOrderPaidCommand
	var updated domain.PaymentAttempt

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders: &stubOrderService{
			markPaidFn: func(_ context.Context, cmd MarkOrderPaidCommand) (Order, error) {
				marked = cmd
				return Order{ID: cmd.OrderID}, nil
			},
		},
		Attempts: &stubAttemptRepo{
			findFn: func(_ context.Context, chargeID string) (domain.PaymentAttempt, error) {
				return domain.PaymentAttempt{ChargeID: chargeID, OrderID: "ord_1", State: domain.PaymentAttemptOTPSent}, nil
			},
			updateFn: func(_ context.Context, attempt domain.PaymentAttempt) error {
				updated = attempt
				return nil
			},
		},
		Gateway: newTestGateway(t, &stubGatewayProvider{}),
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	if err := svc.HandleGatewayWebhook(ctx, GatewayWebhookEvent{
		ChargeID: "chg_abc",
		Status:   "captured",
	}); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if updated.State != domain.PaymentAttemptCaptured {
		t.Fatalf("expected attempt captured got %s", updated.State)
	}
	if marked.OrderID != "ord_1" || marked.PaymentRef != "chg_abc" {
		t.Fatalf("unexpected mark paid command %+v", marked)
	}
}

func TestPaymentServiceWebhookUnknownChargeUsesMetadataOrder(t *testing.T) {
	ctx := context.Background()
	var marked MarkOrderPaidCommand

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders: &stubOrderService{
			markPaidFn: func(_ context.Context, cmd MarkOrderPaidCommand) (Order, error) {
				marked = cmd
				return Order{ID: cmd.OrderID}, nil
			},
		},
		Attempts: &stubAttemptRepo{
			findFn: func(context.Context, string) (domain.PaymentAttempt, error) {
				return domain.PaymentAttempt{}, stubRepoError{notFound: true}
			},
		},
		Gateway: newTestGateway(t, &stubGatewayProvider{}),
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	if err := svc.HandleGatewayWebhook(ctx, GatewayWebhookEvent{
		ChargeID: "chg_orphan",
		Status:   "CAPTURED",
		OrderID:  "ord_meta",
	}); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if marked.OrderID != "ord_meta" {
		t.Fatalf("expected metadata order id got %s", marked.OrderID)
	}
}

func TestPaymentServiceWebhookIgnoresNonCaptured(t *testing.T) {
	ctx := context.Background()
	markPaidCalled := false

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders: &stubOrderService{
			markPaidFn: func(_ context.Context, cmd MarkOrderPaidCommand) (Order, error) {
				markPaidCalled = true
				return Order{}, nil
			},
		},
		Attempts: &stubAttemptRepo{
			findFn: func(_ context.Context, chargeID string) (domain.PaymentAttempt, error) {
				return domain.PaymentAttempt{ChargeID: chargeID, OrderID: "ord_1", State: domain.PaymentAttemptOTPSent}, nil
			},
		},
		Gateway: newTestGateway(t, &stubGatewayProvider{}),
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	if err := svc.HandleGatewayWebhook(ctx, GatewayWebhookEvent{
		ChargeID: "chg_abc",
		Status:   "ABANDONED",
	}); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if markPaidCalled {
		t.Fatalf("abandoned charges must not settle the order")
	}
}

func TestPaymentServiceReconcilePending(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)
	var marked []string
	var gotOlderThan time.Time
	var gotLimit int

	statuses := map[string]payments.Status{
		"chg_captured": payments.StatusCaptured,
		"chg_failed":   payments.StatusFailed,
		"chg_waiting":  payments.StatusInitiated,
	}
	provider := &stubGatewayProvider{
		lookupFn: func(_ context.Context, chargeID string) (payments.Charge, error) {
			status, ok := statuses[chargeID]
			if !ok {
				return payments.Charge{}, errors.New("unknown charge")
			}
			return payments.Charge{ID: chargeID, Status: status}, nil
		},
	}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders: &stubOrderService{
			markPaidFn: func(_ context.Context, cmd MarkOrderPaidCommand) (Order, error) {
				marked = append(marked, cmd.OrderID)
				return Order{ID: cmd.OrderID}, nil
			},
		},
		Attempts: &stubAttemptRepo{
			listPendingFn: func(_ context.Context, olderThan time.Time, limit int) ([]domain.PaymentAttempt, error) {
				gotOlderThan = olderThan
				gotLimit = limit
				return []domain.PaymentAttempt{
					{ChargeID: "chg_captured", OrderID: "ord_a", State: domain.PaymentAttemptOTPSent, Gateway: "tap"},
					{ChargeID: "chg_failed", OrderID: "ord_b", State: domain.PaymentAttemptOTPSent, Gateway: "tap"},
					{ChargeID: "chg_waiting", OrderID: "ord_c", State: domain.PaymentAttemptOTPSent, Gateway: "tap"},
					{ChargeID: "chg_gone", OrderID: "ord_d", State: domain.PaymentAttemptOTPSent, Gateway: "tap"},
				}, nil
			},
		},
		Gateway: newTestGateway(t, provider),
		Clock:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	report, err := svc.ReconcilePending(ctx, ReconcilePaymentsCommand{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !gotOlderThan.Equal(now.Add(-15 * time.Minute)) {
		t.Fatalf("expected default age cutoff got %v", gotOlderThan)
	}
	if gotLimit != 100 {
		t.Fatalf("expected default limit 100 got %d", gotLimit)
	}
	if report.Scanned != 4 {
		t.Fatalf("expected 4 scanned got %d", report.Scanned)
	}
	if report.Captured != 1 || report.Failed != 1 || report.Errors != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(marked) != 1 || marked[0] != "ord_a" {
		t.Fatalf("expected only the captured order settled, got %v", marked)
	}
}

func TestPaymentServiceBankTransferInstructions(t *testing.T) {
	ctx := context.Background()
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders: &stubOrderService{
			getFn: func(_ context.Context, id string) (Order, error) {
				return Order{ID: id, OrderNumber: "SL00042", Total: 578, Currency: "SAR"}, nil
			},
		},
		Attempts: &stubAttemptRepo{},
		Gateway:  newTestGateway(t, &stubGatewayProvider{}),
		BankTransfer: BankTransferConfig{
			BankName:      "Alinma Bank",
			AccountName:   "Seera Lab LLC",
			IBAN:          "SA0305000068201234567890",
			ContactNumber: "+966 55 000 1111",
		},
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	instructions, err := svc.BankTransferInstructions(ctx, "ord_1")
	if err != nil {
		t.Fatalf("instructions: %v", err)
	}
	if instructions.Reference != "SL00042" {
		t.Fatalf("expected order number reference got %s", instructions.Reference)
	}
	if instructions.Amount != 578 || instructions.Currency != "SAR" {
		t.Fatalf("unexpected amount %d %s", instructions.Amount, instructions.Currency)
	}
	if instructions.IBAN != "SA0305000068201234567890" {
		t.Fatalf("unexpected iban %s", instructions.IBAN)
	}
	if instructions.ContactLink != "https://wa.me/966550001111" {
		t.Fatalf("unexpected contact link %s", instructions.ContactLink)
	}
}

func TestPaymentServiceBankTransferOrderNotFound(t *testing.T) {
	ctx := context.Background()
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders: &stubOrderService{
			getFn: func(context.Context, string) (Order, error) {
				return Order{}, ErrOrderNotFound
			},
		},
		Attempts: &stubAttemptRepo{},
		Gateway:  newTestGateway(t, &stubGatewayProvider{}),
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	if _, err := svc.BankTransferInstructions(ctx, "ord_missing"); !errors.Is(err, ErrPaymentOrderNotFound) {
		t.Fatalf("expected order not found got %v", err)
	}
}
