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

const teamCollection = "teamMembers"

// TeamRepository persists staff member profiles.
type TeamRepository struct {
	base *pfirestore.BaseRepository[teamMemberDocument]
}

// NewTeamRepository constructs a Firestore-backed team repository.
func NewTeamRepository(provider *pfirestore.Provider) (*TeamRepository, error) {
	if provider == nil {
		return nil, errors.New("team repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[teamMemberDocument](provider, teamCollection)
	return &TeamRepository{base: base}, nil
}

// Insert stores a new team member. The ID must be unique.
func (r *TeamRepository) Insert(ctx context.Context, member domain.TeamMember) error {
	if r == nil || r.base == nil {
		return errors.New("team repository not initialised")
	}
	memberID := strings.TrimSpace(member.ID)
	if memberID == "" {
		return errors.New("team repository: member id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, memberID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeTeamMemberDocument(member)); err != nil {
		return pfirestore.WrapError("team.insert", err)
	}
	return nil
}

// Update replaces the persisted member state.
func (r *TeamRepository) Update(ctx context.Context, member domain.TeamMember) error {
	if r == nil || r.base == nil {
		return errors.New("team repository not initialised")
	}
	memberID := strings.TrimSpace(member.ID)
	if memberID == "" {
		return errors.New("team repository: member id is required")
	}
	return r.base.Replace(ctx, memberID, encodeTeamMemberDocument(member))
}

// Delete removes the member. Orders referencing the id keep their dangling
// reference and degrade to an unassigned display on read.
func (r *TeamRepository) Delete(ctx context.Context, memberID string) error {
	if r == nil || r.base == nil {
		return errors.New("team repository not initialised")
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return errors.New("team repository: member id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, memberID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("team.delete", err)
	}
	return nil
}

// FindByID fetches a single member.
func (r *TeamRepository) FindByID(ctx context.Context, memberID string) (domain.TeamMember, error) {
	if r == nil || r.base == nil {
		return domain.TeamMember{}, errors.New("team repository not initialised")
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return domain.TeamMember{}, errors.New("team repository: member id is required")
	}
	doc, err := r.base.Get(ctx, memberID)
	if err != nil {
		return domain.TeamMember{}, err
	}
	return decodeTeamMemberDocument(doc.ID, doc.Data), nil
}

// List returns team members ordered by name.
func (r *TeamRepository) List(ctx context.Context, filter repositories.TeamListFilter) (domain.CursorPage[domain.TeamMember], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.TeamMember]{}, errors.New("team repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return domain.CursorPage[domain.TeamMember]{}, err
	}

	items := make([]domain.TeamMember, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeTeamMemberDocument(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.TeamMember]{Items: items}, nil
}

type teamMemberDocument struct {
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email"`
	Position  string    `firestore:"position,omitempty"`
	Active    bool      `firestore:"active"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func encodeTeamMemberDocument(member domain.TeamMember) teamMemberDocument {
	return teamMemberDocument{
		Name:      strings.TrimSpace(member.Name),
		Email:     normaliseEmail(member.Email),
		Position:  strings.TrimSpace(member.Position),
		Active:    member.Active,
		CreatedAt: member.CreatedAt.UTC(),
		UpdatedAt: member.UpdatedAt.UTC(),
	}
}

func decodeTeamMemberDocument(id string, doc teamMemberDocument) domain.TeamMember {
	return domain.TeamMember{
		ID:        id,
		Name:      doc.Name,
		Email:     doc.Email,
		Position:  doc.Position,
		Active:    doc.Active,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
