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

const teamMemberIDPrefix = "tm_"

var (
	// ErrTeamInvalidInput signals the caller provided invalid data.
	ErrTeamInvalidInput = errors.New("team: invalid input")
	// ErrTeamMemberNotFound indicates the member could not be located.
	ErrTeamMemberNotFound = errors.New("team: member not found")
	// ErrTeamConflict indicates a duplicate member id.
	ErrTeamConflict = errors.New("team: conflict")
)

// TeamServiceDeps bundles collaborators for staff administration.
type TeamServiceDeps struct {
	Team        repositories.TeamRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type teamService struct {
	team   repositories.TeamRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

var _ TeamService = (*teamService)(nil)

// NewTeamService wires dependencies into a concrete TeamService.
func NewTeamService(deps TeamServiceDeps) (TeamService, error) {
	if deps.Team == nil {
		return nil, errors.New("team service: team repository is required")
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

	return &teamService{
		team: deps.Team,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *teamService) List(ctx context.Context, filter TeamListFilter) (domain.CursorPage[TeamMember], error) {
	page, err := s.team.List(ctx, repositories.TeamListFilter{
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[TeamMember]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *teamService) Get(ctx context.Context, memberID string) (TeamMember, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return TeamMember{}, fmt.Errorf("%w: member id is required", ErrTeamInvalidInput)
	}
	member, err := s.team.FindByID(ctx, memberID)
	if err != nil {
		return TeamMember{}, s.mapRepositoryError(err)
	}
	return member, nil
}

func (s *teamService) Create(ctx context.Context, cmd UpsertTeamMemberCommand) (TeamMember, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return TeamMember{}, fmt.Errorf("%w: name is required", ErrTeamInvalidInput)
	}

	now := s.clock()
	member := TeamMember{
		ID:        teamMemberIDPrefix + s.newID(),
		Name:      name,
		Email:     strings.ToLower(strings.TrimSpace(cmd.Email)),
		Position:  strings.TrimSpace(cmd.Position),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cmd.Active != nil {
		member.Active = *cmd.Active
	}

	if err := s.team.Insert(ctx, member); err != nil {
		return TeamMember{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "team.member.created", map[string]any{
		"member": member.ID,
		"actor":  strings.TrimSpace(cmd.ActorID),
	})

	return member, nil
}

func (s *teamService) Update(ctx context.Context, cmd UpsertTeamMemberCommand) (TeamMember, error) {
	memberID := strings.TrimSpace(cmd.MemberID)
	if memberID == "" {
		return TeamMember{}, fmt.Errorf("%w: member id is required", ErrTeamInvalidInput)
	}

	member, err := s.team.FindByID(ctx, memberID)
	if err != nil {
		return TeamMember{}, s.mapRepositoryError(err)
	}

	if name := strings.TrimSpace(cmd.Name); name != "" {
		member.Name = name
	}
	if email := strings.TrimSpace(cmd.Email); email != "" {
		member.Email = strings.ToLower(email)
	}
	if position := strings.TrimSpace(cmd.Position); position != "" {
		member.Position = position
	}
	if cmd.Active != nil {
		member.Active = *cmd.Active
	}
	member.UpdatedAt = s.clock()

	if err := s.team.Update(ctx, member); err != nil {
		return TeamMember{}, s.mapRepositoryError(err)
	}

	return member, nil
}

// Delete removes the member. Orders still assigned to the id keep the dangling
// reference and render as unassigned.
func (s *teamService) Delete(ctx context.Context, memberID string) error {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return fmt.Errorf("%w: member id is required", ErrTeamInvalidInput)
	}
	if err := s.team.Delete(ctx, memberID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *teamService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrTeamMemberNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrTeamConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("team: repository unavailable: %w", err)
		}
	}

	return err
}
