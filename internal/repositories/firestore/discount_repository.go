package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/seera-lab/api/internal/domain"
	pfirestore "github.com/seera-lab/api/internal/platform/firestore"
	"github.com/seera-lab/api/internal/repositories"
)

const discountsCollection = "discountCodes"

// DiscountRepository stores discount codes keyed by their normalised code, so
// a duplicate create surfaces as an AlreadyExists conflict from Firestore.
type DiscountRepository struct {
	base *pfirestore.BaseRepository[discountDocument]
}

// NewDiscountRepository constructs a Firestore-backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[discountDocument](provider, discountsCollection)
	return &DiscountRepository{base: base}, nil
}

// Insert stores a new discount code; duplicates conflict.
func (r *DiscountRepository) Insert(ctx context.Context, code domain.DiscountCode) error {
	if r == nil || r.base == nil {
		return errors.New("discount repository not initialised")
	}
	id := normaliseDiscountCode(code.Code)
	if id == "" {
		return errors.New("discount repository: code is required")
	}
	docRef, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeDiscountDocument(code)); err != nil {
		return pfirestore.WrapError("discounts.insert", err)
	}
	return nil
}

// Update replaces the stored code attributes, keeping the usage counter.
func (r *DiscountRepository) Update(ctx context.Context, code domain.DiscountCode) error {
	if r == nil || r.base == nil {
		return errors.New("discount repository not initialised")
	}
	id := normaliseDiscountCode(code.Code)
	if id == "" {
		id = strings.TrimSpace(code.ID)
	}
	if id == "" {
		return errors.New("discount repository: code is required")
	}
	return r.base.Replace(ctx, id, encodeDiscountDocument(code))
}

// Delete removes the discount code.
func (r *DiscountRepository) Delete(ctx context.Context, codeID string) error {
	if r == nil || r.base == nil {
		return errors.New("discount repository not initialised")
	}
	id := normaliseDiscountCode(codeID)
	if id == "" {
		return errors.New("discount repository: code is required")
	}
	docRef, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("discounts.delete", err)
	}
	return nil
}

// FindByCode looks up a code after normalisation.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (domain.DiscountCode, error) {
	if r == nil || r.base == nil {
		return domain.DiscountCode{}, errors.New("discount repository not initialised")
	}
	id := normaliseDiscountCode(code)
	if id == "" {
		return domain.DiscountCode{}, errors.New("discount repository: code is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.DiscountCode{}, err
	}
	return decodeDiscountDocument(doc.ID, doc.Data), nil
}

// IncrementUsage bumps the redemption counter without touching other fields.
func (r *DiscountRepository) IncrementUsage(ctx context.Context, codeID string, delta int64) error {
	if r == nil || r.base == nil {
		return errors.New("discount repository not initialised")
	}
	id := normaliseDiscountCode(codeID)
	if id == "" {
		return errors.New("discount repository: code is required")
	}
	if delta == 0 {
		return nil
	}
	updates := []firestore.Update{
		{Path: "usageCount", Value: firestore.Increment(delta)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}
	if _, err := r.base.Update(ctx, id, updates); err != nil {
		return err
	}
	return nil
}

// List returns discount codes, most recently created first.
func (r *DiscountRepository) List(ctx context.Context, filter repositories.DiscountListFilter) (domain.CursorPage[domain.DiscountCode], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.DiscountCode]{}, errors.New("discount repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return domain.CursorPage[domain.DiscountCode]{}, err
	}

	items := make([]domain.DiscountCode, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeDiscountDocument(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.DiscountCode]{Items: items}, nil
}

type discountDocument struct {
	Code       string     `firestore:"code"`
	Percent    int        `firestore:"percent"`
	ExpiresAt  *time.Time `firestore:"expiresAt,omitempty"`
	Active     bool       `firestore:"active"`
	UsageCount int64      `firestore:"usageCount"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	UpdatedAt  time.Time  `firestore:"updatedAt"`
}

func encodeDiscountDocument(code domain.DiscountCode) discountDocument {
	return discountDocument{
		Code:       normaliseDiscountCode(code.Code),
		Percent:    code.Percent,
		ExpiresAt:  normalizeTimePointer(code.ExpiresAt),
		Active:     code.Active,
		UsageCount: code.UsageCount,
		CreatedAt:  code.CreatedAt.UTC(),
		UpdatedAt:  code.UpdatedAt.UTC(),
	}
}

func decodeDiscountDocument(id string, doc discountDocument) domain.DiscountCode {
	code := doc.Code
	if code == "" {
		code = id
	}
	return domain.DiscountCode{
		ID:         id,
		Code:       code,
		Percent:    doc.Percent,
		ExpiresAt:  doc.ExpiresAt,
		Active:     doc.Active,
		UsageCount: doc.UsageCount,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func normaliseDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
