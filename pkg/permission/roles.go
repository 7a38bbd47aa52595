package permission

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Role names used by the default role table.
const (
	RoleEmployee      = "employee"
	RoleManager       = "manager"
	RoleHRAdmin       = "hr_admin"
	RoleSecurityAdmin = "security_admin"
	RoleAdmin         = "admin"
)

// DefaultRoles maps the built-in roles to their permissions.
func DefaultRoles() map[string]Set {
	return map[string]Set{
		RoleEmployee: NewSet(),
		RoleManager:  NewSet(EmployeesRead, LeaveApprove, AttendanceManage),
		RoleHRAdmin: NewSet(
			EmployeesRead, EmployeesWrite, AttendanceManage,
			ShiftsManage, LeaveApprove, PayrollView,
		),
		RoleSecurityAdmin: NewSet(DevicesBlock, PinsReset),
		RoleAdmin:         NewSet(All()...),
	}
}

// RoleSource resolves the roles an account holds.
type RoleSource interface {
	GetRoles(ctx context.Context, accountID uuid.UUID) ([]string, error)
}

// RoleChecker is a Checker backed by a static role table.
type RoleChecker struct {
	source RoleSource
	roles  map[string]Set
}

func NewRoleChecker(source RoleSource, roles map[string]Set) *RoleChecker {
	if roles == nil {
		roles = DefaultRoles()
	}
	return &RoleChecker{source: source, roles: roles}
}

// Permissions returns the union of the permissions of every role the account holds.
func (c *RoleChecker) Permissions(ctx context.Context, accountID uuid.UUID) (Set, error) {
	names, err := c.source.GetRoles(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}

	granted := NewSet()
	for _, name := range names {
		set, ok := c.roles[name]
		if !ok {
			slog.Warn("Ignoring unknown role", "accountID", accountID, "role", name)
			continue
		}
		granted = granted.Union(set)
	}
	return granted, nil
}

func (c *RoleChecker) HasPermission(ctx context.Context, accountID uuid.UUID, p Permission) (bool, error) {
	granted, err := c.Permissions(ctx, accountID)
	if err != nil {
		return false, err
	}
	return granted.Has(p), nil
}
