package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/repositories"
)

const auditLogIDPrefix = "aud_"

// ErrAuditLogInvalidInput signals the caller provided invalid data.
var ErrAuditLogInvalidInput = errors.New("auditlog: invalid input")

// AuditLogServiceDeps bundles collaborators for the audit trail.
type AuditLogServiceDeps struct {
	AuditLogs   repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type auditLogService struct {
	auditLogs repositories.AuditLogRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

var _ AuditLogService = (*auditLogService)(nil)

// NewAuditLogService wires dependencies into a concrete AuditLogService.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.AuditLogs == nil {
		return nil, errors.New("audit log service: audit log repository is required")
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

	return &auditLogService{
		auditLogs: deps.AuditLogs,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Record persists the entry best effort. Audit failures never abort the
// operation being audited, only produce a log line.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	action := strings.TrimSpace(record.Action)
	if action == "" {
		return
	}

	entry := AuditLogEntry{
		ID:         auditLogIDPrefix + s.newID(),
		ActorID:    strings.TrimSpace(record.ActorID),
		Action:     action,
		TargetKind: strings.TrimSpace(record.TargetKind),
		TargetID:   strings.TrimSpace(record.TargetID),
		Detail:     cloneMap(record.Detail),
		CreatedAt:  s.clock(),
	}

	if err := s.auditLogs.Append(ctx, entry); err != nil {
		s.logger(ctx, "auditlog.append.failed", map[string]any{
			"action": entry.Action,
			"target": entry.TargetID,
			"error":  err.Error(),
		})
	}
}

func (s *auditLogService) List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	page, err := s.auditLogs.List(ctx, repositories.AuditLogFilter{
		ActorID:    strings.TrimSpace(filter.ActorID),
		Action:     strings.TrimSpace(filter.Action),
		TargetKind: strings.TrimSpace(filter.TargetKind),
		TargetID:   strings.TrimSpace(filter.TargetID),
		DateRange:  domain.RangeQuery[time.Time]{From: filter.DateFrom, To: filter.DateTo},
		Pagination: filter.Pagination,
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			return domain.CursorPage[AuditLogEntry]{}, fmt.Errorf("auditlog: repository unavailable: %w", err)
		}
		return domain.CursorPage[AuditLogEntry]{}, err
	}
	return page, nil
}
