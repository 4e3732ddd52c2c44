package auth

import (
	"errors"
	"testing"

	"helpline/internal/domain"
)

func TestRoleGrants(t *testing.T) {
	cases := []struct {
		role domain.Role
		perm Permission
		want bool
	}{
		{domain.RoleAdmin, PermManageUsers, true},
		{domain.RoleAdmin, PermViewAuditLogs, true},
		{domain.RoleAdmin, PermAssign, true},
		{domain.RoleAgent, PermReply, true},
		{domain.RoleAgent, PermUpdateStatus, true},
		{domain.RoleAgent, PermManageTags, true},
		{domain.RoleAgent, PermManageUsers, false},
		{domain.RoleAgent, PermViewAuditLogs, false},
		{domain.RoleAgent, PermAssign, false},
		{domain.RoleViewer, PermViewInbox, true},
		{domain.RoleViewer, PermReply, false},
		{domain.RoleViewer, PermUpdateStatus, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.perm); got != tc.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestRequireReturnsForbidden(t *testing.T) {
	err := Require(domain.RoleViewer, PermReply)
	var fe ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if fe.Permission != PermReply {
		t.Fatalf("permission = %s", fe.Permission)
	}
	if err := Require(domain.RoleAdmin, PermReply); err != nil {
		t.Fatalf("admin denied reply: %v", err)
	}
}

func TestUnknownRoleHasNoGrants(t *testing.T) {
	if Can(domain.Role("SUPERUSER"), PermViewInbox) {
		t.Fatalf("unknown role granted access")
	}
}
