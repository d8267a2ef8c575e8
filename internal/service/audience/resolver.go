// Package audience expands a stored AudienceSpec into user ids at send time.
package audience

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
)

type Resolver interface {
	// Resolve returns the deduplicated recipients of spec, sorted by id.
	Resolve(ctx context.Context, spec model.AudienceSpec) ([]uuid.UUID, error)
}

type resolver struct {
	dir repository.DirectoryRepository
}

func NewResolver(dir repository.DirectoryRepository) Resolver {
	return &resolver{dir: dir}
}

func (r *resolver) Resolve(ctx context.Context, spec model.AudienceSpec) ([]uuid.UUID, error) {
	if err := spec.Validate(); err != nil {
		return nil, apperrors.Validation("invalid audience", err)
	}

	spec = spec.Canonical()
	var (
		ids []uuid.UUID
		err error
	)
	switch spec.Kind {
	case model.AudienceAll, model.AudienceRoles:
		ids, err = r.dir.ActiveAccounts(ctx, spec.ScopedRoles())
	case model.AudienceBranches:
		ids, err = r.branches(ctx, spec.Entries)
	case model.AudienceUsers:
		ids, err = r.dir.ExistingAccounts(ctx, dedupe(spec.UserIDs))
	default:
		return nil, apperrors.Validation(fmt.Sprintf("unknown audience kind %q", spec.Kind), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s audience: %w", spec.Kind, err)
	}
	return dedupe(ids), nil
}

func (r *resolver) branches(ctx context.Context, entries []model.BranchAudience) ([]uuid.UUID, error) {
	var all []uuid.UUID
	for _, e := range entries {
		ids, err := r.dir.BranchMembers(ctx, e.BranchID, e.Group)
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
	}
	return all, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Intersect keeps the ids of candidates that are also in allowed.
func Intersect(candidates, allowed []uuid.UUID) []uuid.UUID {
	set := make(map[uuid.UUID]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	var out []uuid.UUID
	for _, id := range dedupe(candidates) {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
