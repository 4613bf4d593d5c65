package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/repositories"
)

type stubTeamRepo struct {
	insertFn func(context.Context, domain.TeamMember) error
	updateFn func(context.Context, domain.TeamMember) error
	deleteFn func(context.Context, string) error
	findFn   func(context.Context, string) (domain.TeamMember, error)
	listFn   func(context.Context, repositories.TeamListFilter) (domain.CursorPage[domain.TeamMember], error)
}

func (s *stubTeamRepo) Insert(ctx context.Context, member domain.TeamMember) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, member)
	}
	return nil
}

func (s *stubTeamRepo) Update(ctx context.Context, member domain.TeamMember) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, member)
	}
	return nil
}

func (s *stubTeamRepo) Delete(ctx context.Context, memberID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, memberID)
	}
	return nil
}

func (s *stubTeamRepo) FindByID(ctx context.Context, memberID string) (domain.TeamMember, error) {
	if s.findFn != nil {
		return s.findFn(ctx, memberID)
	}
	return domain.TeamMember{}, errors.New("not implemented")
}

func (s *stubTeamRepo) List(ctx context.Context, filter repositories.TeamListFilter) (domain.CursorPage[domain.TeamMember], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.TeamMember]{}, nil
}

func TestTeamServiceCreate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 3, 9, 0, 0, 0, time.UTC)
	var inserted domain.TeamMember

	svc, err := NewTeamService(TeamServiceDeps{
		Team: &stubTeamRepo{
			insertFn: func(_ context.Context, member domain.TeamMember) error {
				inserted = member
				return nil
			},
		},
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "000TEST" },
	})
	if err != nil {
		t.Fatalf("new team service: %v", err)
	}

	member, err := svc.Create(ctx, UpsertTeamMemberCommand{
		Name:     "  Noor Hassan  ",
		Email:    "Noor@Seera.example",
		Position: "CV Writer",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if member.ID != "tm_000TEST" {
		t.Fatalf("unexpected id %s", member.ID)
	}
	if member.Name != "Noor Hassan" || member.Email != "noor@seera.example" {
		t.Fatalf("unexpected member %+v", member)
	}
	if !member.Active {
		t.Fatalf("members default to active")
	}
	if inserted.Position != "CV Writer" {
		t.Fatalf("unexpected stored member %+v", inserted)
	}

	if _, err := svc.Create(ctx, UpsertTeamMemberCommand{Name: "  "}); !errors.Is(err, ErrTeamInvalidInput) {
		t.Fatalf("expected invalid input got %v", err)
	}
}

func TestTeamServiceUpdatePartial(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)
	var updated domain.TeamMember

	svc, err := NewTeamService(TeamServiceDeps{
		Team: &stubTeamRepo{
			findFn: func(_ context.Context, id string) (domain.TeamMember, error) {
				return domain.TeamMember{ID: id, Name: "Noor Hassan", Email: "noor@seera.example", Position: "CV Writer", Active: true}, nil
			},
			updateFn: func(_ context.Context, member domain.TeamMember) error {
				updated = member
				return nil
			},
		},
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new team service: %v", err)
	}

	inactive := false
	member, err := svc.Update(ctx, UpsertTeamMemberCommand{
		MemberID: "tm_1",
		Position: "Senior CV Writer",
		Active:   &inactive,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if member.Name != "Noor Hassan" {
		t.Fatalf("empty fields must not clear existing values, got %q", member.Name)
	}
	if member.Position != "Senior CV Writer" || member.Active {
		t.Fatalf("unexpected member %+v", member)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt %v got %v", now, updated.UpdatedAt)
	}
}

func TestTeamServiceGetNotFound(t *testing.T) {
	ctx := context.Background()
	svc, err := NewTeamService(TeamServiceDeps{
		Team: &stubTeamRepo{
			findFn: func(context.Context, string) (domain.TeamMember, error) {
				return domain.TeamMember{}, stubRepoError{notFound: true}
			},
		},
	})
	if err != nil {
		t.Fatalf("new team service: %v", err)
	}

	if _, err := svc.Get(ctx, "tm_missing"); !errors.Is(err, ErrTeamMemberNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestTeamServiceDelete(t *testing.T) {
	ctx := context.Background()
	var deleted string

	svc, err := NewTeamService(TeamServiceDeps{
		Team: &stubTeamRepo{
			deleteFn: func(_ context.Context, id string) error {
				deleted = id
				return nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new team service: %v", err)
	}

	if err := svc.Delete(ctx, " tm_1 "); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != "tm_1" {
		t.Fatalf("unexpected deleted id %s", deleted)
	}
	if err := svc.Delete(ctx, ""); !errors.Is(err, ErrTeamInvalidInput) {
		t.Fatalf("expected invalid input got %v", err)
	}
}
