package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/seera-lab/api/internal/domain"
	pfirestore "github.com/seera-lab/api/internal/platform/firestore"
	"github.com/seera-lab/api/internal/platform/pagination"
	"github.com/seera-lab/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists service orders in Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)
	return &OrderRepository{base: base}, nil
}

// Insert stores a new order document. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the persisted order state with the provided snapshot.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	// The transactional read surfaces the document being deleted mid-edit;
	// concurrent admin edits otherwise remain last-writer-wins.
	return r.base.Replace(ctx, orderID, encodeOrderDocument(order))
}

// Delete removes the order document permanently.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(orderID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns orders matching the filter ordered by most recent creation.
// Free-text search is applied after the query because Firestore has no
// substring operator.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
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
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := make([]string, 0, len(filter.Status))
	for _, s := range filter.Status {
		trimmed := strings.TrimSpace(string(s))
		if trimmed != "" {
			statusFilters = append(statusFilters, trimmed)
		}
	}
	assignee := strings.TrimSpace(filter.AssigneeID)
	email := strings.ToLower(strings.TrimSpace(filter.Email))

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			q = q.Where("status", "in", statusFilters)
		}
		if assignee != "" {
			q = q.Where("assigneeId", "==", assignee)
		}
		if email != "" {
			q = q.Where("customer.email", "==", email)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 && strings.TrimSpace(filter.Search) == "" {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		matched := docs[:0]
		for _, doc := range docs {
			if orderMatchesSearch(doc.Data, search) {
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
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeOrderListToken(tokenTime, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func orderMatchesSearch(doc orderDocument, search string) bool {
	for _, candidate := range []string{
		doc.OrderNumber,
		doc.Customer.Name,
		doc.Customer.Email,
		doc.Customer.Phone,
		doc.PackageName,
	} {
		if strings.Contains(strings.ToLower(candidate), search) {
			return true
		}
	}
	return false
}

type orderDocument struct {
	OrderNumber     string                `firestore:"orderNumber"`
	PackageID       string                `firestore:"packageId"`
	PackageName     string                `firestore:"packageName"`
	BasePrice       int64                 `firestore:"basePrice"`
	AddOns          []string              `firestore:"addOns"`
	DiscountCode    string                `firestore:"discountCode,omitempty"`
	DiscountPercent int                   `firestore:"discountPercent"`
	Subtotal        int64                 `firestore:"subtotal"`
	Total           int64                 `firestore:"total"`
	Currency        string                `firestore:"currency"`
	Customer        orderCustomerDocument `firestore:"customer"`
	Goals           string                `firestore:"goals,omitempty"`
	Status          string                `firestore:"status"`
	AssigneeID      string                `firestore:"assigneeId,omitempty"`
	InternalNotes   string                `firestore:"internalNotes,omitempty"`
	PaymentState    string                `firestore:"paymentState"`
	PaymentMethod   string                `firestore:"paymentMethod,omitempty"`
	PaymentRef      string                `firestore:"paymentRef,omitempty"`
	PaidAt          *time.Time            `firestore:"paidAt,omitempty"`
	Metadata        map[string]any        `firestore:"metadata,omitempty"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
}

type orderCustomerDocument struct {
	Name   string `firestore:"name"`
	Email  string `firestore:"email"`
	Phone  string `firestore:"phone,omitempty"`
	Locale string `firestore:"locale,omitempty"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		OrderNumber:     strings.TrimSpace(order.OrderNumber),
		PackageID:       strings.TrimSpace(order.PackageID),
		PackageName:     strings.TrimSpace(order.PackageName),
		BasePrice:       order.BasePrice,
		AddOns:          cloneStrings(order.AddOns),
		DiscountCode:    strings.TrimSpace(order.DiscountCode),
		DiscountPercent: order.DiscountPercent,
		Subtotal:        order.Subtotal,
		Total:           order.Total,
		Currency:        strings.TrimSpace(order.Currency),
		Customer: orderCustomerDocument{
			Name:   strings.TrimSpace(order.Customer.Name),
			Email:  strings.ToLower(strings.TrimSpace(order.Customer.Email)),
			Phone:  strings.TrimSpace(order.Customer.Phone),
			Locale: strings.TrimSpace(order.Customer.Locale),
		},
		Goals:         order.Goals,
		Status:        string(order.Status),
		AssigneeID:    strings.TrimSpace(order.AssigneeID),
		InternalNotes: order.InternalNotes,
		PaymentState:  string(order.PaymentState),
		PaymentMethod: string(order.PaymentMethod),
		PaymentRef:    strings.TrimSpace(order.PaymentRef),
		PaidAt:        normalizeTimePointer(order.PaidAt),
		Metadata:      cloneMap(order.Metadata),
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
	}
}

func decodeOrderDocument(id string, doc orderDocument, createTime, updateTime time.Time) domain.Order {
	order := domain.Order{
		ID:              id,
		OrderNumber:     doc.OrderNumber,
		PackageID:       doc.PackageID,
		PackageName:     doc.PackageName,
		BasePrice:       doc.BasePrice,
		AddOns:          cloneStrings(doc.AddOns),
		DiscountCode:    doc.DiscountCode,
		DiscountPercent: doc.DiscountPercent,
		Subtotal:        doc.Subtotal,
		Total:           doc.Total,
		Currency:        doc.Currency,
		Customer: domain.CustomerInfo{
			Name:   doc.Customer.Name,
			Email:  doc.Customer.Email,
			Phone:  doc.Customer.Phone,
			Locale: doc.Customer.Locale,
		},
		Goals:         doc.Goals,
		Status:        domain.OrderStatus(doc.Status),
		AssigneeID:    doc.AssigneeID,
		InternalNotes: doc.InternalNotes,
		PaymentState:  domain.PaymentState(doc.PaymentState),
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		PaymentRef:    doc.PaymentRef,
		PaidAt:        doc.PaidAt,
		Metadata:      cloneMap(doc.Metadata),
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = createTime
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = updateTime
	}
	if order.PaymentState == "" {
		order.PaymentState = domain.PaymentStateUnpaid
	}
	return order
}

func encodeOrderListToken(createdAt time.Time, docID string) string {
	return pagination.EncodeToken(pagination.Cursor{SortKey: createdAt, DocID: docID})
}

func decodeOrderListToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	return cursor.SortKey, cursor.DocID, nil
}
