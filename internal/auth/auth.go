// Package auth maps dashboard roles to permissions.
package auth

import (
	"fmt"

	"helpline/internal/domain"
)

// Permission identifies one guarded operation.
type Permission string

const (
	PermReply         Permission = "conversation.reply"
	PermUpdateStatus  Permission = "conversation.status.update"
	PermAssign        Permission = "conversation.assign"
	PermTriage        Permission = "conversation.triage"
	PermManageTags    Permission = "tag.manage"
	PermManageUsers   Permission = "user.manage"
	PermViewAuditLogs Permission = "audit.read"
	PermViewInbox     Permission = "conversation.read"
)

// ForbiddenError indicates the caller's role lacks a permission.
type ForbiddenError struct {
	Permission Permission
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// grants is the role→permission table. VIEWER gets read-only access;
// assignment and administration stay ADMIN-only.
var grants = map[Permission][]domain.Role{
	PermReply:         {domain.RoleAdmin, domain.RoleAgent},
	PermUpdateStatus:  {domain.RoleAdmin, domain.RoleAgent},
	PermAssign:        {domain.RoleAdmin},
	PermTriage:        {domain.RoleAdmin, domain.RoleAgent},
	PermManageTags:    {domain.RoleAdmin, domain.RoleAgent},
	PermManageUsers:   {domain.RoleAdmin},
	PermViewAuditLogs: {domain.RoleAdmin},
	PermViewInbox:     {domain.RoleAdmin, domain.RoleAgent, domain.RoleViewer},
}

// Can reports whether role holds the permission.
func Can(role domain.Role, perm Permission) bool {
	for _, r := range grants[perm] {
		if r == role {
			return true
		}
	}
	return false
}

// Require returns a ForbiddenError when the role lacks the permission.
func Require(role domain.Role, perm Permission) error {
	if !Can(role, perm) {
		return ForbiddenError{Permission: perm}
	}
	return nil
}
