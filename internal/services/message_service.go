package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/repositories"
)

const (
	messageIDPrefix  = "msg_"
	messageMaxLength = 4000

	messageSenderClient = "client"
	messageSenderStaff  = "staff"
)

var (
	// ErrMessageInvalidInput signals the caller provided invalid data.
	ErrMessageInvalidInput = errors.New("message: invalid input")
	// ErrMessageOrderNotFound indicates the target order does not exist.
	ErrMessageOrderNotFound = errors.New("message: order not found")
)

// MessageServiceDeps bundles collaborators for the messaging channel.
type MessageServiceDeps struct {
	Messages    repositories.MessageRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type messageService struct {
	messages repositories.MessageRepository
	orders   repositories.OrderRepository
	clock    func() time.Time
	newID    func() string
	policy   *bluemonday.Policy
	logger   func(context.Context, string, map[string]any)
}

var _ MessageService = (*messageService)(nil)

// NewMessageService wires dependencies into a concrete MessageService.
func NewMessageService(deps MessageServiceDeps) (MessageService, error) {
	if deps.Messages == nil {
		return nil, errors.New("message service: message repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("message service: order repository is required")
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

	return &messageService{
		messages: deps.Messages,
		orders:   deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
		// Message bodies render as plain text on both sides of the channel,
		// so every HTML construct is stripped rather than escaped.
		policy: bluemonday.StrictPolicy(),
		logger: logger,
	}, nil
}

// Post appends a message to the order's channel after sanitising the body.
func (s *messageService) Post(ctx context.Context, cmd PostMessageCommand) (Message, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Message{}, fmt.Errorf("%w: order id is required", ErrMessageInvalidInput)
	}

	sender := strings.ToLower(strings.TrimSpace(cmd.Sender))
	if sender != messageSenderClient && sender != messageSenderStaff {
		return Message{}, fmt.Errorf("%w: sender must be %q or %q", ErrMessageInvalidInput, messageSenderClient, messageSenderStaff)
	}

	body := strings.TrimSpace(s.policy.Sanitize(cmd.Body))
	if body == "" {
		return Message{}, fmt.Errorf("%w: message body is empty", ErrMessageInvalidInput)
	}
	if len(body) > messageMaxLength {
		return Message{}, fmt.Errorf("%w: message body exceeds %d characters", ErrMessageInvalidInput, messageMaxLength)
	}

	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return Message{}, s.mapRepositoryError(err)
	}

	message := Message{
		ID:        messageIDPrefix + s.newID(),
		OrderID:   orderID,
		Sender:    sender,
		Body:      body,
		CreatedAt: s.clock(),
	}

	if err := s.messages.Append(ctx, message); err != nil {
		return Message{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "message.posted", map[string]any{
		"order":  orderID,
		"sender": sender,
	})

	return message, nil
}

// ListSince returns messages created strictly after the given instant, oldest
// first, which lets clients poll with their last-seen timestamp.
func (s *messageService) ListSince(ctx context.Context, orderID string, after time.Time, pager Pagination) (domain.CursorPage[Message], error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.CursorPage[Message]{}, fmt.Errorf("%w: order id is required", ErrMessageInvalidInput)
	}

	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return domain.CursorPage[Message]{}, s.mapRepositoryError(err)
	}

	page, err := s.messages.ListSince(ctx, orderID, after.UTC(), pager)
	if err != nil {
		return domain.CursorPage[Message]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *messageService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrMessageOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("message: repository unavailable: %w", err)
		}
	}

	return err
}
