package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/seera-lab/api/internal/domain"
	pfirestore "github.com/seera-lab/api/internal/platform/firestore"
)

const paymentAttemptsCollection = "paymentAttempts"

// PaymentAttemptRepository records wallet charge sessions keyed by the gateway
// charge id, so both the OTP confirmation and the webhook can find the order.
type PaymentAttemptRepository struct {
	base *pfirestore.BaseRepository[paymentAttemptDocument]
}

// NewPaymentAttemptRepository constructs a Firestore-backed attempt repository.
func NewPaymentAttemptRepository(provider *pfirestore.Provider) (*PaymentAttemptRepository, error) {
	if provider == nil {
		return nil, errors.New("payment attempt repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[paymentAttemptDocument](provider, paymentAttemptsCollection)
	return &PaymentAttemptRepository{base: base}, nil
}

// Insert stores a new attempt. The charge id must be unique.
func (r *PaymentAttemptRepository) Insert(ctx context.Context, attempt domain.PaymentAttempt) error {
	if r == nil || r.base == nil {
		return errors.New("payment attempt repository not initialised")
	}
	chargeID := strings.TrimSpace(attempt.ChargeID)
	if chargeID == "" {
		return errors.New("payment attempt repository: charge id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, chargeID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodePaymentAttemptDocument(attempt)); err != nil {
		return pfirestore.WrapError("payment_attempts.insert", err)
	}
	return nil
}

// Update replaces the stored attempt state.
func (r *PaymentAttemptRepository) Update(ctx context.Context, attempt domain.PaymentAttempt) error {
	if r == nil || r.base == nil {
		return errors.New("payment attempt repository not initialised")
	}
	chargeID := strings.TrimSpace(attempt.ChargeID)
	if chargeID == "" {
		return errors.New("payment attempt repository: charge id is required")
	}
	return r.base.Replace(ctx, chargeID, encodePaymentAttemptDocument(attempt))
}

// FindByChargeID loads the attempt recorded for the gateway charge.
func (r *PaymentAttemptRepository) FindByChargeID(ctx context.Context, chargeID string) (domain.PaymentAttempt, error) {
	if r == nil || r.base == nil {
		return domain.PaymentAttempt{}, errors.New("payment attempt repository not initialised")
	}
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" {
		return domain.PaymentAttempt{}, errors.New("payment attempt repository: charge id is required")
	}
	doc, err := r.base.Get(ctx, chargeID)
	if err != nil {
		return domain.PaymentAttempt{}, err
	}
	return decodePaymentAttemptDocument(doc.ID, doc.Data), nil
}

// ListPending returns non-terminal attempts created before the watermark,
// oldest first. Used by the reconciliation sweep to catch charges whose
// webhook never arrived.
func (r *PaymentAttemptRepository) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.PaymentAttempt, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("payment attempt repository not initialised")
	}
	pending := []string{
		string(domain.PaymentAttemptInitiated),
		string(domain.PaymentAttemptOTPSent),
		string(domain.PaymentAttemptVerifying),
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("state", "in", pending)
		if !olderThan.IsZero() {
			q = q.Where("createdAt", "<", olderThan.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	attempts := make([]domain.PaymentAttempt, 0, len(docs))
	for _, doc := range docs {
		attempts = append(attempts, decodePaymentAttemptDocument(doc.ID, doc.Data))
	}
	return attempts, nil
}

type paymentAttemptDocument struct {
	OrderID   string         `firestore:"orderId"`
	Amount    int64          `firestore:"amount"`
	Currency  string         `firestore:"currency"`
	State     string         `firestore:"state"`
	Gateway   string         `firestore:"gateway"`
	Raw       map[string]any `firestore:"raw,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt"`
	UpdatedAt time.Time      `firestore:"updatedAt"`
}

func decodePaymentAttemptDocument(id string, doc paymentAttemptDocument) domain.PaymentAttempt {
	return domain.PaymentAttempt{
		ID:        id,
		ChargeID:  id,
		OrderID:   doc.OrderID,
		Amount:    doc.Amount,
		Currency:  doc.Currency,
		State:     domain.PaymentAttemptState(doc.State),
		Gateway:   doc.Gateway,
		Raw:       cloneMap(doc.Raw),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func encodePaymentAttemptDocument(attempt domain.PaymentAttempt) paymentAttemptDocument {
	return paymentAttemptDocument{
		OrderID:   strings.TrimSpace(attempt.OrderID),
		Amount:    attempt.Amount,
		Currency:  strings.TrimSpace(attempt.Currency),
		State:     string(attempt.State),
		Gateway:   strings.TrimSpace(attempt.Gateway),
		Raw:       cloneMap(attempt.Raw),
		CreatedAt: attempt.CreatedAt.UTC(),
		UpdatedAt: attempt.UpdatedAt.UTC(),
	}
}
