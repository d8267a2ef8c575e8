package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type AudienceKind string

const (
	AudienceAll      AudienceKind = "all"
	AudienceBranches AudienceKind = "branches"
	AudienceUsers    AudienceKind = "users"
	AudienceRoles    AudienceKind = "roles"
)

// Group selects which side of a branch roster an entry targets.
type Group string

const (
	GroupParents Group = "parents"
	GroupPlayers Group = "players"
)

type Role string

const (
	RoleParent Role = "parent"
	RolePlayer Role = "player"
)

// AllRoles is the role list equivalent to AudienceAll.
var AllRoles = []Role{RoleParent, RolePlayer}

type BranchAudience struct {
	BranchID uuid.UUID `json:"branchId"`
	Group    Group     `json:"group"`
}

// AudienceSpec is the serialized recipient description stored on a rule.
// Exactly the fields belonging to Kind are meaningful.
type AudienceSpec struct {
	Kind    AudienceKind     `json:"kind"`
	Entries []BranchAudience `json:"entries,omitempty"`
	UserIDs []uuid.UUID      `json:"userIds,omitempty"`
	Roles   []Role           `json:"roles,omitempty"`
}

func (a AudienceSpec) Validate() error {
	switch a.Kind {
	case AudienceAll:
		return nil
	case AudienceBranches:
		if len(a.Entries) == 0 {
			return fmt.Errorf("branches audience needs at least one entry")
		}
		for _, e := range a.Entries {
			if e.BranchID == uuid.Nil {
				return fmt.Errorf("branch entry is missing branchId")
			}
			if e.Group != GroupParents && e.Group != GroupPlayers {
				return fmt.Errorf("invalid branch group %q", e.Group)
			}
		}
		return nil
	case AudienceUsers:
		if len(a.UserIDs) == 0 {
			return fmt.Errorf("users audience needs at least one user id")
		}
		return nil
	case AudienceRoles:
		if len(a.Roles) == 0 {
			return fmt.Errorf("roles audience needs at least one role")
		}
		for _, r := range a.Roles {
			if r != RoleParent && r != RolePlayer {
				return fmt.Errorf("invalid role %q", r)
			}
		}
		return nil
	case "":
		return fmt.Errorf("audience kind is required")
	default:
		return fmt.Errorf("unknown audience kind %q", a.Kind)
	}
}

// Canonical folds the roles form into the branch/user/all form: a roles list
// covering every role becomes AudienceAll, duplicates are dropped, and roles
// are sorted. Other kinds are returned unchanged.
func (a AudienceSpec) Canonical() AudienceSpec {
	if a.Kind != AudienceRoles {
		return a
	}
	roles := uniqueRoles(a.Roles)
	if len(roles) == len(AllRoles) {
		return AudienceSpec{Kind: AudienceAll}
	}
	return AudienceSpec{Kind: AudienceRoles, Roles: roles}
}

// RolesForm converts to the roles representation read by roles-only
// clients. Only all and roles are representable; ok is false otherwise.
func (a AudienceSpec) RolesForm() (AudienceSpec, bool) {
	switch a.Kind {
	case AudienceAll:
		return AudienceSpec{Kind: AudienceRoles, Roles: append([]Role(nil), AllRoles...)}, true
	case AudienceRoles:
		return AudienceSpec{Kind: AudienceRoles, Roles: uniqueRoles(a.Roles)}, true
	case AudienceBranches, AudienceUsers:
		return AudienceSpec{}, false
	default:
		return AudienceSpec{}, false
	}
}

// ScopedRoles reports the roles an all/roles audience covers.
func (a AudienceSpec) ScopedRoles() []Role {
	switch a.Kind {
	case AudienceAll:
		return append([]Role(nil), AllRoles...)
	case AudienceRoles:
		return uniqueRoles(a.Roles)
	}
	return nil
}

func uniqueRoles(in []Role) []Role {
	seen := make(map[Role]struct{}, len(in))
	out := make([]Role, 0, len(in))
	for _, r := range in {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Value stores the audience as JSONB.
func (a AudienceSpec) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan reads the audience from a JSONB column.
func (a *AudienceSpec) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = AudienceSpec{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into AudienceSpec", src)
	}
	return json.Unmarshal(raw, a)
}
