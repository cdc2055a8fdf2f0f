package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestRole_Validate(t *testing.T) {
	orgID := uuid.New()

	cases := []struct {
		name string
		role Role
		ok   bool
	}{
		{"org role with org id", Role{Type: RoleTypeOrganization, OrganizationID: &orgID}, true},
		{"org role without org id", Role{Type: RoleTypeOrganization}, false},
		{"global role without org id", Role{Type: RoleTypeGlobal}, true},
		{"global role with org id", Role{Type: RoleTypeGlobal, OrganizationID: &orgID}, false},
		{"unknown type", Role{Type: "project"}, false},
		{"empty type", Role{}, false},
	}
	for _, tc := range cases {
		err := tc.role.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: Validate() = %v, want nil", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: Validate() = nil, want error", tc.name)
		}
	}
}
