package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/repositories"
)

type stubAuditLogRepo struct {
	appendFn func(context.Context, domain.AuditLogEntry) error
	listFn   func(context.Context, repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

func (s *stubAuditLogRepo) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if s.appendFn != nil {
		return s.appendFn(ctx, entry)
	}
	return nil
}

func (s *stubAuditLogRepo) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.AuditLogEntry]{}, nil
}

func TestAuditLogServiceRecord(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 4, 16, 0, 0, 0, time.UTC)
	var appended domain.AuditLogEntry

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		AuditLogs: &stubAuditLogRepo{
			appendFn: func(_ context.Context, entry domain.AuditLogEntry) error {
				appended = entry
				return nil
			},
		},
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "000TEST" },
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(ctx, AuditLogRecord{
		ActorID:    "admin-1",
		Action:     "order.status.updated",
		TargetKind: "order",
		TargetID:   "ord_1",
		Detail:     map[string]any{"from": "NEW", "to": "IN_PROGRESS"},
	})

	if appended.ID != "aud_000TEST" {
		t.Fatalf("unexpected id %s", appended.ID)
	}
	if appended.Action != "order.status.updated" || appended.TargetID != "ord_1" {
		t.Fatalf("unexpected entry %+v", appended)
	}
	if !appended.CreatedAt.Equal(now) {
		t.Fatalf("expected createdAt %v got %v", now, appended.CreatedAt)
	}
}

func TestAuditLogServiceRecordSwallowsFailures(t *testing.T) {
	ctx := context.Background()
	var logged string

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		AuditLogs: &stubAuditLogRepo{
			appendFn: func(context.Context, domain.AuditLogEntry) error {
				return errors.New("firestore down")
			},
		},
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = event
		},
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	// Must not panic or surface the error.
	svc.Record(ctx, AuditLogRecord{Action: "discount.created", TargetID: "SUMMER25"})
	if logged != "auditlog.append.failed" {
		t.Fatalf("expected failure log, got %q", logged)
	}
}

func TestAuditLogServiceRecordIgnoresEmptyAction(t *testing.T) {
	ctx := context.Background()
	appends := 0

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		AuditLogs: &stubAuditLogRepo{
			appendFn: func(context.Context, domain.AuditLogEntry) error {
				appends++
				return nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(ctx, AuditLogRecord{Action: "   "})
	if appends != 0 {
		t.Fatalf("empty actions must not be persisted, got %d appends", appends)
	}
}

func TestAuditLogServiceListForwardsFilter(t *testing.T) {
	ctx := context.Background()
	var gotFilter repositories.AuditLogFilter

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		AuditLogs: &stubAuditLogRepo{
			listFn: func(_ context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
				gotFilter = filter
				return domain.CursorPage[domain.AuditLogEntry]{}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	if _, err := svc.List(ctx, AuditLogFilter{
		ActorID:    " admin-1 ",
		Action:     "order.deleted",
		TargetKind: "order",
	}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotFilter.ActorID != "admin-1" || gotFilter.Action != "order.deleted" || gotFilter.TargetKind != "order" {
		t.Fatalf("unexpected forwarded filter %+v", gotFilter)
	}
}
