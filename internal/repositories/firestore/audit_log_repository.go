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

const auditLogsCollection = "auditLogs"

// AuditLogRepository persists immutable back-office audit entries.
type AuditLogRepository struct {
	base *pfirestore.BaseRepository[auditLogDocument]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogsCollection)
	return &AuditLogRepository{base: base}, nil
}

// Append stores a new audit entry. Entries are never mutated afterwards.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if r == nil || r.base == nil {
		return errors.New("audit log repository not initialised")
	}
	entryID := strings.TrimSpace(entry.ID)
	if entryID == "" {
		return errors.New("audit log repository: entry id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, entryID)
	if err != nil {
		return err
	}
	doc := auditLogDocument{
		ActorID:    strings.TrimSpace(entry.ActorID),
		Action:     strings.TrimSpace(entry.Action),
		TargetKind: strings.TrimSpace(entry.TargetKind),
		TargetID:   strings.TrimSpace(entry.TargetID),
		Detail:     cloneMap(entry.Detail),
		CreatedAt:  entry.CreatedAt.UTC(),
	}
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("audit_logs.append", err)
	}
	return nil
}

// List returns audit entries matching the filter, newest first.
func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, errors.New("audit log repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if actor := strings.TrimSpace(filter.ActorID); actor != "" {
			q = q.Where("actorId", "==", actor)
		}
		if action := strings.TrimSpace(filter.Action); action != "" {
			q = q.Where("action", "==", action)
		}
		if kind := strings.TrimSpace(filter.TargetKind); kind != "" {
			q = q.Where("targetKind", "==", kind)
		}
		if target := strings.TrimSpace(filter.TargetID); target != "" {
			q = q.Where("targetId", "==", target)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	items := make([]domain.AuditLogEntry, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.AuditLogEntry{
			ID:         doc.ID,
			ActorID:    doc.Data.ActorID,
			Action:     doc.Data.Action,
			TargetKind: doc.Data.TargetKind,
			TargetID:   doc.Data.TargetID,
			Detail:     cloneMap(doc.Data.Detail),
			CreatedAt:  doc.Data.CreatedAt,
		})
	}
	return domain.CursorPage[domain.AuditLogEntry]{Items: items}, nil
}

type auditLogDocument struct {
	ActorID    string         `firestore:"actorId"`
	Action     string         `firestore:"action"`
	TargetKind string         `firestore:"targetKind"`
	TargetID   string         `firestore:"targetId,omitempty"`
	Detail     map[string]any `firestore:"detail,omitempty"`
	CreatedAt  time.Time      `firestore:"createdAt"`
}
