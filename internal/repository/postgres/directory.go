package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
)

// directoryRepository reads the roster. Enrollment at a branch means an
// active or pending subscription there.
type directoryRepository struct {
	BaseRepository
}

func NewDirectoryRepository(base BaseRepository) repository.DirectoryRepository {
	return &directoryRepository{base}
}

func (r *directoryRepository) BranchMembers(ctx context.Context, branchID uuid.UUID, group model.Group) ([]uuid.UUID, error) {
	var query string
	switch group {
	case model.GroupPlayers:
		query = `
			SELECT DISTINCT a.id
			FROM accounts a
			JOIN subscriptions s ON s.player_id = a.id
			WHERE s.branch_id = $1
			AND s.status IN ('active', 'pending')
			AND a.active = TRUE
			ORDER BY a.id
		`
	case model.GroupParents:
		query = `
			SELECT DISTINCT a.id
			FROM accounts a
			JOIN player_parents pp ON pp.parent_id = a.id
			JOIN subscriptions s ON s.player_id = pp.player_id
			WHERE s.branch_id = $1
			AND s.status IN ('active', 'pending')
			AND a.active = TRUE
			ORDER BY a.id
		`
	default:
		return nil, apperrors.Validation(fmt.Sprintf("unknown branch group %q", group), nil)
	}

	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, branchID); err != nil {
		return nil, fmt.Errorf("failed to list branch members: %w", err)
	}
	return ids, nil
}

func (r *directoryRepository) ActiveAccounts(ctx context.Context, roles []model.Role) ([]uuid.UUID, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}

	query := `
		SELECT id FROM accounts
		WHERE active = TRUE AND role = ANY($1)
		ORDER BY id
	`
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	return ids, nil
}

func (r *directoryRepository) ExistingAccounts(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id FROM accounts WHERE id = ANY($1::uuid[]) ORDER BY id`

	var existing []uuid.UUID
	if err := r.db.SelectContext(ctx, &existing, query, pq.Array(uuidStrings(ids))); err != nil {
		return nil, fmt.Errorf("failed to check accounts: %w", err)
	}
	return existing, nil
}

func (r *directoryRepository) ParentsOfPlayer(ctx context.Context, playerID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT pp.parent_id
		FROM player_parents pp
		JOIN accounts a ON a.id = pp.parent_id
		WHERE pp.player_id = $1 AND a.active = TRUE
		ORDER BY pp.parent_id
	`
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, playerID); err != nil {
		return nil, fmt.Errorf("failed to list parents: %w", err)
	}
	return ids, nil
}

func (r *directoryRepository) Account(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	query := `
		SELECT id, role, full_name, phone, active, created_at
		FROM accounts
		WHERE id = $1
	`
	var account model.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("account", err)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
