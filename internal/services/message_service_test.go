package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/seera-lab/api/internal/domain"
)

type stubMessageRepo struct {
	appendFn func(context.Context, domain.Message) error
	listFn   func(context.Context, string, time.Time, domain.Pagination) (domain.CursorPage[domain.Message], error)
}

func (s *stubMessageRepo) Append(ctx context.Context, message domain.Message) error {
	if s.appendFn != nil {
		return s.appendFn(ctx, message)
	}
	return nil
}

func (s *stubMessageRepo) ListSince(ctx context.Context, orderID string, after time.Time, pager domain.Pagination) (domain.CursorPage[domain.Message], error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID, after, pager)
	}
	return domain.CursorPage[domain.Message]{}, nil
}

func existingOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return domain.Order{ID: id}, nil
		},
	}
}

func TestMessageServicePost(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)
	var appended domain.Message

	svc, err := NewMessageService(MessageServiceDeps{
		Messages: &stubMessageRepo{
			appendFn: func(_ context.Context, message domain.Message) error {
				appended = message
				return nil
			},
		},
		Orders:      existingOrderRepo(),
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "000TEST" },
	})
	if err != nil {
		t.Fatalf("new message service: %v", err)
	}

	message, err := svc.Post(ctx, PostMessageCommand{
		OrderID: "ord_1",
		Sender:  "Client",
		Body:    "  Any update on my CV?  ",
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if message.ID != "msg_000TEST" {
		t.Fatalf("unexpected id %s", message.ID)
	}
	if message.Sender != "client" {
		t.Fatalf("expected lowercased sender got %s", message.Sender)
	}
	if message.Body != "Any update on my CV?" {
		t.Fatalf("unexpected body %q", message.Body)
	}
	if appended.OrderID != "ord_1" {
		t.Fatalf("unexpected stored message %+v", appended)
	}
}

func TestMessageServicePostStripsHTML(t *testing.T) {
	ctx := context.Background()
	svc, err := NewMessageService(MessageServiceDeps{
		Messages: &stubMessageRepo{},
		Orders:   existingOrderRepo(),
	})
	if err != nil {
		t.Fatalf("new message service: %v", err)
	}

	message, err := svc.Post(ctx, PostMessageCommand{
		OrderID: "ord_1",
		Sender:  "staff",
		Body:    `Draft ready <script>alert("x")</script><b>today</b>`,
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if strings.Contains(message.Body, "<") || strings.Contains(message.Body, "script") {
		t.Fatalf("markup must be stripped, got %q", message.Body)
	}

	if _, err := svc.Post(ctx, PostMessageCommand{
		OrderID: "ord_1",
		Sender:  "client",
		Body:    "<script></script>",
	}); !errors.Is(err, ErrMessageInvalidInput) {
		t.Fatalf("a body that sanitises to empty must be rejected, got %v", err)
	}
}

func TestMessageServicePostValidation(t *testing.T) {
	ctx := context.Background()
	svc, err := NewMessageService(MessageServiceDeps{
		Messages: &stubMessageRepo{},
		Orders:   existingOrderRepo(),
	})
	if err != nil {
		t.Fatalf("new message service: %v", err)
	}

	if _, err := svc.Post(ctx, PostMessageCommand{Sender: "client", Body: "hi"}); !errors.Is(err, ErrMessageInvalidInput) {
		t.Fatalf("expected invalid input for missing order, got %v", err)
	}
	if _, err := svc.Post(ctx, PostMessageCommand{OrderID: "ord_1", Sender: "robot", Body: "hi"}); !errors.Is(err, ErrMessageInvalidInput) {
		t.Fatalf("expected invalid sender, got %v", err)
	}
	if _, err := svc.Post(ctx, PostMessageCommand{
		OrderID: "ord_1",
		Sender:  "client",
		Body:    strings.Repeat("a", 4001),
	}); !errors.Is(err, ErrMessageInvalidInput) {
		t.Fatalf("expected oversized body rejection, got %v", err)
	}
}

func TestMessageServicePostOrderMissing(t *testing.T) {
	ctx := context.Background()
	svc, err := NewMessageService(MessageServiceDeps{
		Messages: &stubMessageRepo{},
		Orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) {
				return domain.Order{}, stubRepoError{notFound: true}
			},
		},
	})
	if err != nil {
		t.Fatalf("new message service: %v", err)
	}

	if _, err := svc.Post(ctx, PostMessageCommand{OrderID: "ord_gone", Sender: "client", Body: "hi"}); !errors.Is(err, ErrMessageOrderNotFound) {
		t.Fatalf("expected order not found got %v", err)
	}
}

func TestMessageServiceListSince(t *testing.T) {
	ctx := context.Background()
	after := time.Date(2025, 5, 2, 8, 0, 0, 0, time.Local)
	var gotAfter time.Time

	svc, err := NewMessageService(MessageServiceDeps{
		Messages: &stubMessageRepo{
			listFn: func(_ context.Context, orderID string, since time.Time, pager domain.Pagination) (domain.CursorPage[domain.Message], error) {
				gotAfter = since
				return domain.CursorPage[domain.Message]{
					Items: []domain.Message{{ID: "msg_1", OrderID: orderID}},
				}, nil
			},
		},
		Orders: existingOrderRepo(),
	})
	if err != nil {
		t.Fatalf("new message service: %v", err)
	}

	page, err := svc.ListSince(ctx, "ord_1", after, Pagination{PageSize: 50})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 message got %d", len(page.Items))
	}
	if gotAfter.Location() != time.UTC {
		t.Fatalf("expected UTC cutoff got %v", gotAfter.Location())
	}
}
