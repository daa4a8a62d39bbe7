package models

import "net/http"

// Capability is one of the CRUD flags on a module grant
type Capability string

const (
	CapabilityCreate Capability = "create"
	CapabilityRead   Capability = "read"
	CapabilityUpdate Capability = "update"
	CapabilityDelete Capability = "delete"
)

// Permission sources
const (
	PermissionSourceUser = "user_permission"
	PermissionSourceRole = "role_permission"
)

// CapabilityForMethod maps an HTTP method to the capability it requires.
// ok is false for methods that have no mapping.
func CapabilityForMethod(method string) (Capability, bool) {
	switch method {
	case http.MethodPost:
		return CapabilityCreate, true
	case http.MethodGet:
		return CapabilityRead, true
	case http.MethodPut, http.MethodPatch:
		return CapabilityUpdate, true
	case http.MethodDelete:
		return CapabilityDelete, true
	default:
		return "", false
	}
}

// ModulePermission is the effective grant for one module, with a direct user
// grant taking precedence over the role grant
type ModulePermission struct {
	ModuleID        int
	ModuleName      string
	EndpointPattern string
	CanCreate       bool
	CanRead         bool
	CanUpdate       bool
	CanDelete       bool
	Source          string
}

// Allows checks a single capability flag
func (p ModulePermission) Allows(c Capability) bool {
	switch c {
	case CapabilityCreate:
		return p.CanCreate
	case CapabilityRead:
		return p.CanRead
	case CapabilityUpdate:
		return p.CanUpdate
	case CapabilityDelete:
		return p.CanDelete
	default:
		return false
	}
}
