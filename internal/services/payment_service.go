package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/payments"
	"github.com/seera-lab/api/internal/repositories"
)

const (
	paymentAttemptIDPrefix = "pay_"

	// otpMinLength rejects obviously malformed codes before burning a
	// gateway verification attempt.
	otpMinLength = 4

	// defaultReconcileAge keeps the sweep away from charges the customer may
	// still be confirming interactively.
	defaultReconcileAge   = 15 * time.Minute
	defaultReconcileLimit = 100
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentOrderNotFound indicates the target order does not exist.
	ErrPaymentOrderNotFound = errors.New("payment: order not found")
	// ErrPaymentAlreadyPaid indicates the order already has a confirmed payment.
	ErrPaymentAlreadyPaid = errors.New("payment: order already paid")
	// ErrOTPMalformed indicates the supplied code cannot be a valid OTP.
	ErrOTPMalformed = errors.New("payment: malformed otp")
	// ErrPaymentAttemptNotFound indicates no attempt matches the charge id.
	ErrPaymentAttemptNotFound = errors.New("payment: attempt not found")
	// ErrPaymentNotCaptured indicates the gateway did not capture the charge.
	ErrPaymentNotCaptured = errors.New("payment: charge not captured")
)

// BankTransferConfig carries the static beneficiary details surfaced to customers.
type BankTransferConfig struct {
	BankName      string
	AccountName   string
	IBAN          string
	ContactNumber string
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders       OrderService
	Attempts     repositories.PaymentAttemptRepository
	Gateway      *payments.Manager
	BankTransfer BankTransferConfig
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders       OrderService
	attempts     repositories.PaymentAttemptRepository
	gateway      *payments.Manager
	bankTransfer BankTransferConfig
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService wires dependencies into a concrete PaymentService.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Attempts == nil {
		return nil, errors.New("payment service: payment attempt repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway manager is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:       deps.Orders,
		attempts:     deps.Attempts,
		gateway:      deps.Gateway,
		bankTransfer: deps.BankTransfer,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// InitiateWalletPayment opens a wallet charge for the order's total. The
// gateway sends the OTP as a side effect of charge creation.
func (s *paymentService) InitiateWalletPayment(ctx context.Context, cmd InitiateWalletPaymentCommand) (PaymentAttempt, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentAttempt{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	phone := strings.TrimSpace(cmd.Phone)
	if phone == "" {
		return PaymentAttempt{}, fmt.Errorf("%w: wallet phone is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return PaymentAttempt{}, fmt.Errorf("%w: %v", ErrPaymentOrderNotFound, err)
		}
		return PaymentAttempt{}, err
	}
	if order.PaymentState == domain.PaymentStatePaid {
		return PaymentAttempt{}, ErrPaymentAlreadyPaid
	}

	charge, err := s.gateway.CreateCharge(ctx, payments.PaymentContext{Currency: order.Currency}, payments.ChargeRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      order.Total,
		Currency:    order.Currency,
		Description: "Payment for order " + order.OrderNumber,
		Customer: payments.ChargeCustomer{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		WalletPhone: phone,
		Metadata:    map[string]string{"order_id": order.ID},
	})
	if err != nil {
		return PaymentAttempt{}, fmt.Errorf("payment: create charge: %w", err)
	}

	now := s.clock()
	attempt := PaymentAttempt{
		ID:        paymentAttemptIDPrefix + s.newID(),
		ChargeID:  charge.ID,
		OrderID:   order.ID,
		Amount:    order.Total,
		Currency:  order.Currency,
		State:     attemptStateForCharge(charge.Status),
		Gateway:   charge.Provider,
		Raw:       charge.Raw,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.attempts.Insert(ctx, attempt); err != nil {
		return PaymentAttempt{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "payment.wallet.initiated", map[string]any{
		"order":  order.ID,
		"charge": charge.ID,
		"state":  string(attempt.State),
	})

	return attempt, nil
}

// ConfirmWalletPayment forwards the OTP to the gateway. Capture is the only
// success: every other outcome leaves the order unpaid and returns
// ErrPaymentNotCaptured so the customer can retry or fall back to transfer.
func (s *paymentService) ConfirmWalletPayment(ctx context.Context, cmd ConfirmWalletPaymentCommand) (PaymentAttempt, error) {
	chargeID := strings.TrimSpace(cmd.ChargeID)
	if chargeID == "" {
		return PaymentAttempt{}, fmt.Errorf("%w: charge id is required", ErrPaymentInvalidInput)
	}
	otp := strings.TrimSpace(cmd.OTP)
	if len(otp) < otpMinLength {
		return PaymentAttempt{}, ErrOTPMalformed
	}

	attempt, err := s.attempts.FindByChargeID(ctx, chargeID)
	if err != nil {
		return PaymentAttempt{}, s.mapRepositoryError(err)
	}
	if attempt.State == domain.PaymentAttemptCaptured {
		return attempt, nil
	}

	charge, err := s.gateway.VerifyOTP(ctx, payments.PaymentContext{PreferredProvider: attempt.Gateway, Currency: attempt.Currency}, payments.VerifyOTPRequest{
		ChargeID: chargeID,
		OTP:      otp,
	})
	if err != nil {
		return PaymentAttempt{}, fmt.Errorf("payment: verify otp: %w", err)
	}

	now := s.clock()
	attempt.Raw = charge.Raw
	attempt.UpdatedAt = now

	if !charge.Status.IsCaptured() {
		if charge.Status.IsTerminalFailure() {
			attempt.State = domain.PaymentAttemptFailed
		} else {
			attempt.State = domain.PaymentAttemptVerifying
		}
		if err := s.attempts.Update(ctx, attempt); err != nil {
			return PaymentAttempt{}, s.mapRepositoryError(err)
		}
		s.logger(ctx, "payment.wallet.rejected", map[string]any{
			"charge": chargeID,
			"status": string(charge.Status),
		})
		return attempt, fmt.Errorf("%w: gateway status %s", ErrPaymentNotCaptured, charge.Status)
	}

	attempt.State = domain.PaymentAttemptCaptured
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return PaymentAttempt{}, s.mapRepositoryError(err)
	}

	if _, err := s.orders.MarkPaid(ctx, MarkOrderPaidCommand{
		OrderID:    attempt.OrderID,
		Method:     domain.PaymentMethodWallet,
		PaymentRef: chargeID,
	}); err != nil {
		// The money moved. Surface the inconsistency loudly instead of
		// failing the customer's confirmation.
		s.logger(ctx, "payment.wallet.mark_paid.failed", map[string]any{
			"order":  attempt.OrderID,
			"charge": chargeID,
			"error":  err.Error(),
		})
	}

	return attempt, nil
}

// HandleGatewayWebhook applies asynchronous charge updates. Marking an
// already-paid order paid is a no-op, which makes gateway retries safe.
func (s *paymentService) HandleGatewayWebhook(ctx context.Context, event GatewayWebhookEvent) error {
	chargeID := strings.TrimSpace(event.ChargeID)
	if chargeID == "" {
		return fmt.Errorf("%w: charge id is required", ErrPaymentInvalidInput)
	}

	status := payments.Status(strings.ToUpper(strings.TrimSpace(event.Status)))
	orderID := strings.TrimSpace(event.OrderID)

	attempt, err := s.attempts.FindByChargeID(ctx, chargeID)
	switch {
	case err == nil:
		if orderID == "" {
			orderID = attempt.OrderID
		}
		attempt.State = attemptStateForCharge(status)
		attempt.UpdatedAt = s.clock()
		if len(event.Raw) > 0 {
			attempt.Raw = event.Raw
		}
		if err := s.attempts.Update(ctx, attempt); err != nil {
			return s.mapRepositoryError(err)
		}
	case isAttemptNotFound(err):
		// Charges opened before a redeploy may have no local attempt. The
		// order id from the webhook metadata still lets us settle them.
		s.logger(ctx, "payment.webhook.unknown_charge", map[string]any{
			"charge": chargeID,
			"status": string(status),
		})
	default:
		return s.mapRepositoryError(err)
	}

	if !status.IsCaptured() {
		return nil
	}
	if orderID == "" {
		s.logger(ctx, "payment.webhook.missing_order", map[string]any{
			"charge": chargeID,
		})
		return nil
	}

	if _, err := s.orders.MarkPaid(ctx, MarkOrderPaidCommand{
		OrderID:    orderID,
		Method:     domain.PaymentMethodWallet,
		PaymentRef: chargeID,
	}); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			s.logger(ctx, "payment.webhook.order_missing", map[string]any{
				"order":  orderID,
				"charge": chargeID,
			})
			return nil
		}
		return err
	}

	return nil
}

// ReconcilePending sweeps attempts still open at the gateway and settles the
// ones whose terminal webhook never arrived. Invoked on a schedule.
func (s *paymentService) ReconcilePending(ctx context.Context, cmd ReconcilePaymentsCommand) (ReconcileReport, error) {
	olderThan := cmd.OlderThan
	if olderThan.IsZero() {
		olderThan = s.clock().Add(-defaultReconcileAge)
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}

	pending, err := s.attempts.ListPending(ctx, olderThan.UTC(), limit)
	if err != nil {
		return ReconcileReport{}, s.mapRepositoryError(err)
	}

	report := ReconcileReport{Scanned: len(pending)}
	for _, attempt := range pending {
		charge, err := s.gateway.LookupCharge(ctx, payments.PaymentContext{PreferredProvider: attempt.Gateway, Currency: attempt.Currency}, attempt.ChargeID)
		if err != nil {
			report.Errors++
			s.logger(ctx, "payment.reconcile.lookup_failed", map[string]any{
				"charge": attempt.ChargeID,
				"error":  err.Error(),
			})
			continue
		}

		state := attemptStateForCharge(charge.Status)
		if state == attempt.State {
			continue
		}

		attempt.State = state
		attempt.Raw = charge.Raw
		attempt.UpdatedAt = s.clock()
		if err := s.attempts.Update(ctx, attempt); err != nil {
			report.Errors++
			s.logger(ctx, "payment.reconcile.update_failed", map[string]any{
				"charge": attempt.ChargeID,
				"error":  err.Error(),
			})
			continue
		}

		switch state {
		case domain.PaymentAttemptFailed:
			report.Failed++
		case domain.PaymentAttemptCaptured:
			report.Captured++
			if _, err := s.orders.MarkPaid(ctx, MarkOrderPaidCommand{
				OrderID:    attempt.OrderID,
				Method:     domain.PaymentMethodWallet,
				PaymentRef: attempt.ChargeID,
			}); err != nil {
				report.Errors++
				s.logger(ctx, "payment.reconcile.mark_paid.failed", map[string]any{
					"order":  attempt.OrderID,
					"charge": attempt.ChargeID,
					"error":  err.Error(),
				})
			}
		}
	}

	s.logger(ctx, "payment.reconcile.completed", map[string]any{
		"scanned":  report.Scanned,
		"captured": report.Captured,
		"failed":   report.Failed,
		"errors":   report.Errors,
	})

	return report, nil
}

// BankTransferInstructions returns the static beneficiary details with the
// order number as the transfer reference.
func (s *paymentService) BankTransferInstructions(ctx context.Context, orderID string) (BankTransferInstructions, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return BankTransferInstructions{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return BankTransferInstructions{}, fmt.Errorf("%w: %v", ErrPaymentOrderNotFound, err)
		}
		return BankTransferInstructions{}, err
	}

	return BankTransferInstructions{
		BankName:      s.bankTransfer.BankName,
		AccountName:   s.bankTransfer.AccountName,
		IBAN:          s.bankTransfer.IBAN,
		Amount:        order.Total,
		Currency:      order.Currency,
		Reference:     order.OrderNumber,
		ContactLink:   whatsAppLink(s.bankTransfer.ContactNumber),
		ContactNumber: s.bankTransfer.ContactNumber,
	}, nil
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentAttemptNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}

	return err
}

func isAttemptNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func attemptStateForCharge(status payments.Status) domain.PaymentAttemptState {
	switch {
	case status.IsCaptured():
		return domain.PaymentAttemptCaptured
	case status.IsTerminalFailure():
		return domain.PaymentAttemptFailed
	case status == payments.StatusInitiated:
		return domain.PaymentAttemptOTPSent
	default:
		return domain.PaymentAttemptInitiated
	}
}

func whatsAppLink(number string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	if digits == "" {
		return ""
	}
	return "https://wa.me/" + digits
}
