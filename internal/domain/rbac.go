package domain

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Resource is something a permission grants access to
type Resource string

const (
	ResourceCustomers Resource = "customers"
	ResourceJobs      Resource = "jobs"
	ResourceInvoices  Resource = "invoices"
	ResourcePayments  Resource = "payments"
	ResourceServices  Resource = "services"
	ResourcePricing   Resource = "pricing"
	ResourceInventory Resource = "inventory"
	ResourceUsers     Resource = "users"
	ResourceRoles     Resource = "roles"
)

// Action is what a permission allows on a resource
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

var (
	AllResources = []Resource{
		ResourceCustomers, ResourceJobs, ResourceInvoices, ResourcePayments,
		ResourceServices, ResourcePricing, ResourceInventory, ResourceUsers, ResourceRoles,
	}
	AllActions = []Action{ActionRead, ActionWrite, ActionDelete}
)

// Permission is a resource/action pair, stored as "<resource>.<action>"
type Permission struct {
	Resource Resource
	Action   Action
}

// Code returns the stored permission code, e.g. jobs.read
func (p Permission) Code() string {
	return string(p.Resource) + "." + string(p.Action)
}

// Description is the seeded human readable description
func (p Permission) Description() string {
	action := string(p.Action)
	return strings.ToUpper(action[:1]) + action[1:] + " " + string(p.Resource)
}

// ID is stable across databases so that seeding can be repeated
func (p Permission) ID() uuid.UUID {
	return uuid.NewSHA1(rbacNamespace, []byte("permission:"+p.Code()))
}

// AllPermissions returns every resource/action combination in a stable order
func AllPermissions() []Permission {
	perms := make([]Permission, 0, len(AllResources)*len(AllActions))
	for _, r := range AllResources {
		for _, a := range AllActions {
			perms = append(perms, Permission{Resource: r, Action: a})
		}
	}
	return perms
}

// Role names of the system roles shared by every tenant
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
	RoleViewer  = "viewer"

	DefaultRole = RoleStaff
)

// RoleDefinition describes a seeded system role
type RoleDefinition struct {
	Name        string
	Description string
	Permissions []Permission
}

// ID is stable across databases so that seeding can be repeated
func (r RoleDefinition) ID() uuid.UUID {
	return RoleID(r.Name)
}

// RoleID returns the seeded id of the system role with the given name
func RoleID(name string) uuid.UUID {
	return uuid.NewSHA1(rbacNamespace, []byte("role:"+name))
}

var rbacNamespace = uuid.MustParse("0b5a6e0c-7d42-5e8b-a3f1-5b8c9d0e1f2a")

// SystemRoles returns the seeded roles, most privileged first
func SystemRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			Name:        RoleOwner,
			Description: "Full access, including role management",
			Permissions: AllPermissions(),
		},
		{
			Name:        RoleAdmin,
			Description: "Full access except deleting roles",
			Permissions: filterPermissions(func(p Permission) bool {
				return !(p.Resource == ResourceRoles && p.Action == ActionDelete)
			}),
		},
		{
			Name:        RoleManager,
			Description: "Runs the shop floor and billing",
			Permissions: filterPermissions(func(p Permission) bool {
				switch p.Action {
				case ActionRead:
					return true
				case ActionWrite:
					return inResources(p.Resource, ResourceCustomers, ResourceJobs, ResourceInvoices,
						ResourceInventory, ResourcePayments, ResourceServices, ResourcePricing)
				default:
					return inResources(p.Resource, ResourceCustomers, ResourceJobs, ResourceInvoices, ResourceInventory)
				}
			}),
		},
		{
			Name:        RoleStaff,
			Description: "Works on jobs and stock",
			Permissions: filterPermissions(func(p Permission) bool {
				switch p.Action {
				case ActionRead:
					return inResources(p.Resource, ResourceCustomers, ResourceJobs, ResourceServices,
						ResourcePricing, ResourceInventory)
				case ActionWrite:
					return inResources(p.Resource, ResourceJobs, ResourceInventory)
				default:
					return false
				}
			}),
		},
		{
			Name:        RoleViewer,
			Description: "Read-only access to business data",
			Permissions: filterPermissions(func(p Permission) bool {
				return p.Action == ActionRead && !inResources(p.Resource, ResourceUsers, ResourceRoles)
			}),
		},
	}
}

// SystemRoleNames returns the names of the seeded roles, sorted
func SystemRoleNames() []string {
	roles := SystemRoles()
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

// roleAliases maps role names seen in the legacy data to system roles
var roleAliases = map[string]string{
	"administrator": RoleAdmin,
	"superadmin":    RoleOwner,
	"super_admin":   RoleOwner,
	"employee":      RoleStaff,
	"operator":      RoleStaff,
	"read-only":     RoleViewer,
	"readonly":      RoleViewer,
	"read_only":     RoleViewer,
}

// RoleAliases returns a copy of the legacy alias table
func RoleAliases() map[string]string {
	out := make(map[string]string, len(roleAliases))
	for k, v := range roleAliases {
		out[k] = v
	}
	return out
}

// ResolveRoleName maps a legacy primary_role value to a system role name.
// Unknown or empty values fall back to DefaultRole.
func ResolveRoleName(legacy string) string {
	name := strings.ToLower(strings.TrimSpace(legacy))
	for _, r := range SystemRoles() {
		if r.Name == name {
			return name
		}
	}
	if alias, ok := roleAliases[name]; ok {
		return alias
	}
	return DefaultRole
}

func filterPermissions(keep func(Permission) bool) []Permission {
	var out []Permission
	for _, p := range AllPermissions() {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func inResources(r Resource, set ...Resource) bool {
	for _, s := range set {
		if r == s {
			return true
		}
	}
	return false
}
