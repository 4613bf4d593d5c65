package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/seera-lab/api/internal/platform/httpx"
	"github.com/seera-lab/api/internal/services"
)

const maxPaymentBodySize = 16 * 1024

// PaymentHandlers exposes the wallet OTP flow and the bank transfer details.
type PaymentHandlers struct {
	payments services.PaymentService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/wallet", h.initiateWallet)
	r.Post("/wallet/verify", h.verifyWallet)
	r.Get("/bank-transfer/{orderID}", h.bankTransfer)
}

type initiateWalletRequest struct {
	OrderID string `json:"order_id"`
	Phone   string `json:"phone"`
}

type paymentAttemptPayload struct {
	ID        string `json:"id"`
	ChargeID  string `json:"charge_id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (h *PaymentHandlers) initiateWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req initiateWalletRequest
	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	attempt, err := h.payments.InitiateWalletPayment(ctx, services.InitiateWalletPaymentCommand{
		OrderID: req.OrderID,
		Phone:   req.Phone,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildPaymentAttemptPayload(attempt))
}

type verifyWalletRequest struct {
	ChargeID string `json:"charge_id"`
	OTP      string `json:"otp"`
}

func (h *PaymentHandlers) verifyWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req verifyWalletRequest
	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	attempt, err := h.payments.ConfirmWalletPayment(ctx, services.ConfirmWalletPaymentCommand{
		ChargeID: req.ChargeID,
		OTP:      req.OTP,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPaymentAttemptPayload(attempt))
}

type bankTransferPayload struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	IBAN          string `json:"iban"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
	ContactLink   string `json:"contact_link,omitempty"`
	ContactNumber string `json:"contact_number,omitempty"`
}

func (h *PaymentHandlers) bankTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	instructions, err := h.payments.BankTransferInstructions(ctx, orderID)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, bankTransferPayload{
		BankName:      instructions.BankName,
		AccountName:   instructions.AccountName,
		IBAN:          instructions.IBAN,
		Amount:        instructions.Amount,
		Currency:      instructions.Currency,
		Reference:     instructions.Reference,
		ContactLink:   instructions.ContactLink,
		ContactNumber: instructions.ContactNumber,
	})
}

func buildPaymentAttemptPayload(attempt services.PaymentAttempt) paymentAttemptPayload {
	return paymentAttemptPayload{
		ID:        attempt.ID,
		ChargeID:  attempt.ChargeID,
		OrderID:   attempt.OrderID,
		Amount:    attempt.Amount,
		Currency:  attempt.Currency,
		State:     string(attempt.State),
		CreatedAt: formatTime(attempt.CreatedAt),
		UpdatedAt: formatTime(attempt.UpdatedAt),
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOTPMalformed):
		httpx.WriteError(ctx, w, httpx.NewError("otp_malformed", "verification code is malformed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentAttemptNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment attempt not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentAlreadyPaid):
		httpx.WriteError(ctx, w, httpx.NewError("order_already_paid", "order already has a confirmed payment", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentNotCaptured):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_captured", "verification failed, payment was not captured", http.StatusPaymentRequired))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusBadGateway))
	}
}
