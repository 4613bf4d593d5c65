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

const messagesCollection = "orderMessages"

// MessageRepository appends and reads the per-order messaging channel. Reads
// are cursor-based on the message timestamp so portal clients can poll with
// an `after` watermark instead of stacking listeners.
type MessageRepository struct {
	base *pfirestore.BaseRepository[messageDocument]
}

// NewMessageRepository constructs a Firestore-backed message repository.
func NewMessageRepository(provider *pfirestore.Provider) (*MessageRepository, error) {
	if provider == nil {
		return nil, errors.New("message repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[messageDocument](provider, messagesCollection)
	return &MessageRepository{base: base}, nil
}

// Append stores a new message on the channel.
func (r *MessageRepository) Append(ctx context.Context, message domain.Message) error {
	if r == nil || r.base == nil {
		return errors.New("message repository not initialised")
	}
	messageID := strings.TrimSpace(message.ID)
	if messageID == "" {
		return errors.New("message repository: message id is required")
	}
	if strings.TrimSpace(message.OrderID) == "" {
		return errors.New("message repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, messageID)
	if err != nil {
		return err
	}
	doc := messageDocument{
		OrderID:   strings.TrimSpace(message.OrderID),
		Sender:    strings.TrimSpace(message.Sender),
		Body:      message.Body,
		CreatedAt: message.CreatedAt.UTC(),
	}
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("messages.append", err)
	}
	return nil
}

// ListSince returns messages for the order created strictly after the watermark,
// oldest first.
func (r *MessageRepository) ListSince(ctx context.Context, orderID string, after time.Time, pager domain.Pagination) (domain.CursorPage[domain.Message], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Message]{}, errors.New("message repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.CursorPage[domain.Message]{}, errors.New("message repository: order id is required")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("orderId", "==", orderID)
		if !after.IsZero() {
			q = q.Where("createdAt", ">", after.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Message]{}, err
	}

	items := make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.Message{
			ID:        doc.ID,
			OrderID:   doc.Data.OrderID,
			Sender:    doc.Data.Sender,
			Body:      doc.Data.Body,
			CreatedAt: doc.Data.CreatedAt,
		})
	}
	return domain.CursorPage[domain.Message]{Items: items}, nil
}

type messageDocument struct {
	OrderID   string    `firestore:"orderId"`
	Sender    string    `firestore:"sender"`
	Body      string    `firestore:"body"`
	CreatedAt time.Time `firestore:"createdAt"`
}
