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

const customersCollection = "customers"

// CustomerRepository stores per-email customer aggregates. Documents are keyed
// by the lowercased email so repeat orders land on the same record.
type CustomerRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[customerDocument](provider, customersCollection)
	return &CustomerRepository{provider: provider, base: base}, nil
}

// Upsert merges the aggregate deltas for the customer's email inside a
// transaction so two concurrent checkouts cannot lose an order count.
func (r *CustomerRepository) Upsert(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	email := normaliseEmail(customer.Email)
	if email == "" {
		return domain.Customer{}, errors.New("customer repository: email is required")
	}

	var saved domain.Customer
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, email)
		if err != nil {
			return err
		}

		now := customer.UpdatedAt.UTC()
		if now.IsZero() {
			now = time.Now().UTC()
		}

		doc := customerDocument{
			Name:         strings.TrimSpace(customer.Name),
			Email:        email,
			Phone:        strings.TrimSpace(customer.Phone),
			OrderCount:   customer.OrderCount,
			TotalSpend:   customer.TotalSpend,
			FirstOrderAt: customer.FirstOrderAt.UTC(),
			LastOrderAt:  customer.LastOrderAt.UTC(),
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		snap, err := tx.Get(ref)
		if err == nil {
			var existing customerDocument
			if decodeErr := snap.DataTo(&existing); decodeErr != nil {
				return decodeErr
			}
			doc.OrderCount = existing.OrderCount + customer.OrderCount
			doc.TotalSpend = existing.TotalSpend + customer.TotalSpend
			doc.CreatedAt = existing.CreatedAt
			if !existing.FirstOrderAt.IsZero() {
				doc.FirstOrderAt = existing.FirstOrderAt
			}
			if doc.Name == "" {
				doc.Name = existing.Name
			}
			if doc.Phone == "" {
				doc.Phone = existing.Phone
			}
			if doc.LastOrderAt.Before(existing.LastOrderAt) {
				doc.LastOrderAt = existing.LastOrderAt
			}
		} else if !isNotFoundErr(err) {
			return err
		}

		saved = decodeCustomerDocument(email, doc)
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return saved, nil
}

// FindByEmail loads the aggregate for the given email.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	id := normaliseEmail(email)
	if id == "" {
		return domain.Customer{}, errors.New("customer repository: email is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return decodeCustomerDocument(doc.ID, doc.Data), nil
}

// List returns customers ordered by most recent order.
func (r *CustomerRepository) List(ctx context.Context, filter repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Customer]{}, errors.New("customer repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Customer]{}, errors.New("customer repository: invalid page token")
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("lastOrderAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 && strings.TrimSpace(filter.Search) == "" {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Customer]{}, err
	}

	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		matched := docs[:0]
		for _, doc := range docs {
			if strings.Contains(strings.ToLower(doc.Data.Name), search) ||
				strings.Contains(strings.ToLower(doc.Data.Email), search) ||
				strings.Contains(doc.Data.Phone, search) {
				matched = append(matched, doc)
			}
		}
		docs = matched
		if fetchLimit > 0 && len(docs) > fetchLimit {
			docs = docs[:fetchLimit]
		}
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeOrderListToken(last.Data.LastOrderAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeCustomerDocument(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Customer]{Items: items, NextPageToken: nextToken}, nil
}

type customerDocument struct {
	Name         string    `firestore:"name"`
	Email        string    `firestore:"email"`
	Phone        string    `firestore:"phone,omitempty"`
	OrderCount   int64     `firestore:"orderCount"`
	TotalSpend   int64     `firestore:"totalSpend"`
	FirstOrderAt time.Time `firestore:"firstOrderAt"`
	LastOrderAt  time.Time `firestore:"lastOrderAt"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func decodeCustomerDocument(id string, doc customerDocument) domain.Customer {
	return domain.Customer{
		ID:           id,
		Name:         doc.Name,
		Email:        doc.Email,
		Phone:        doc.Phone,
		OrderCount:   doc.OrderCount,
		TotalSpend:   doc.TotalSpend,
		FirstOrderAt: doc.FirstOrderAt,
		LastOrderAt:  doc.LastOrderAt,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
