package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudienceSpec_RoundTripBetweenForms(t *testing.T) {
	all := AudienceSpec{Kind: AudienceAll}

	roles, ok := all.RolesForm()
	require.True(t, ok)
	assert.Equal(t, AudienceRoles, roles.Kind)
	assert.ElementsMatch(t, AllRoles, roles.Roles)
	assert.Equal(t, all, roles.Canonical())

	partial := AudienceSpec{Kind: AudienceRoles, Roles: []Role{RolePlayer, RolePlayer}}
	canon := partial.Canonical()
	assert.Equal(t, []Role{RolePlayer}, canon.Roles)
	back, ok := canon.RolesForm()
	require.True(t, ok)
	assert.Equal(t, canon, back)
}

func TestAudienceSpec_BranchAndUserFormsHaveNoRolesForm(t *testing.T) {
	_, ok := AudienceSpec{Kind: AudienceBranches, Entries: []BranchAudience{{BranchID: uuid.New(), Group: GroupParents}}}.RolesForm()
	assert.False(t, ok)
	_, ok = AudienceSpec{Kind: AudienceUsers, UserIDs: []uuid.UUID{uuid.New()}}.RolesForm()
	assert.False(t, ok)
}

func TestAudienceSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    AudienceSpec
		wantErr bool
	}{
		{"all", AudienceSpec{Kind: AudienceAll}, false},
		{"empty kind", AudienceSpec{}, true},
		{"unknown kind", AudienceSpec{Kind: "everyone"}, true},
		{"branches without entries", AudienceSpec{Kind: AudienceBranches}, true},
		{"bad group", AudienceSpec{Kind: AudienceBranches, Entries: []BranchAudience{{BranchID: uuid.New(), Group: "coaches"}}}, true},
		{"users without ids", AudienceSpec{Kind: AudienceUsers}, true},
		{"bad role", AudienceSpec{Kind: AudienceRoles, Roles: []Role{"coach"}}, true},
		{"roles", AudienceSpec{Kind: AudienceRoles, Roles: []Role{RoleParent}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAudienceSpec_ScanStoredJSON(t *testing.T) {
	branch := uuid.New()
	raw := []byte(`{"kind":"branches","entries":[{"branchId":"` + branch.String() + `","group":"players"}]}`)

	var spec AudienceSpec
	require.NoError(t, spec.Scan(raw))
	assert.Equal(t, AudienceBranches, spec.Kind)
	require.Len(t, spec.Entries, 1)
	assert.Equal(t, branch, spec.Entries[0].BranchID)

	v, err := spec.Value()
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(v.([]byte), &decoded))
	assert.Equal(t, "branches", decoded["kind"])
}
