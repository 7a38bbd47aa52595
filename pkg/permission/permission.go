// Package permission is the closed set of HRIS permissions and the
// capability used to check them. Permission names are constants; a name that
// is not one of them fails Parse instead of silently never matching.
package permission

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
)

type Permission string

const (
	EmployeesRead    Permission = "employees.read"
	EmployeesWrite   Permission = "employees.write"
	AttendanceManage Permission = "attendance.manage"
	ShiftsManage     Permission = "shifts.manage"
	LeaveApprove     Permission = "leave.approve"
	PayrollView      Permission = "payroll.view"
	RolesManage      Permission = "roles.manage"
	DevicesBlock     Permission = "devices.block"
	PinsReset        Permission = "pins.reset"
)

var all = NewSet(
	EmployeesRead,
	EmployeesWrite,
	AttendanceManage,
	ShiftsManage,
	LeaveApprove,
	PayrollView,
	RolesManage,
	DevicesBlock,
	PinsReset,
)

// All returns every permission, sorted.
func All() []Permission {
	return all.List()
}

func (p Permission) Valid() bool {
	return all.Has(p)
}

func (p Permission) String() string {
	return string(p)
}

// Parse converts a permission name, rejecting unknown names.
func Parse(name string) (Permission, error) {
	p := Permission(name)
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission %q", name)
	}
	return p, nil
}

// Set is a set of permissions.
type Set map[Permission]struct{}

func NewSet(permissions ...Permission) Set {
	s := make(Set, len(permissions))
	for _, p := range permissions {
		s[p] = struct{}{}
	}
	return s
}

func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

func (s Set) Add(permissions ...Permission) {
	for _, p := range permissions {
		s[p] = struct{}{}
	}
}

// Union returns a new set holding the permissions of s and other.
func (s Set) Union(other Set) Set {
	out := NewSet(s.List()...)
	out.Add(other.List()...)
	return out
}

// List returns the permissions sorted by name.
func (s Set) List() []Permission {
	keys := maps.Keys(s)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Checker answers whether an account holds a permission.
type Checker interface {
	HasPermission(ctx context.Context, accountID uuid.UUID, p Permission) (bool, error)
}
