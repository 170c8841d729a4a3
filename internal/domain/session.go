package domain

import (
	"nestfeed/pkg/derrors"
)

// Role is the resolved marketplace role of an authenticated identity.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleRealtor  Role = "realtor"
)

// ParseRole validates a role string coming from a profile document or a
// registration request. Unrecognized values are rejected so callers can fail
// closed.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCustomer, RoleRealtor:
		return Role(s), nil
	}
	return "", derrors.Newf(derrors.CodeInvalidInput, "unknown role %q", s)
}

// SessionStatus is the lifecycle state of the device session.
type SessionStatus string

const (
	// StatusResolving is the initial state before the credential stream has
	// fired for the first time.
	StatusResolving SessionStatus = "resolving"
	// StatusUnauthenticated means no credential is present.
	StatusUnauthenticated SessionStatus = "unauthenticated"
	// StatusAuthenticatedNoRole means a credential exists but the profile is
	// missing, unreadable, or carries no recognized role.
	StatusAuthenticatedNoRole SessionStatus = "authenticated_no_role"
	// StatusAuthenticated means credential and role are both resolved.
	StatusAuthenticated SessionStatus = "authenticated"
)

// Session is the process-wide identity snapshot: credential identity, resolved
// role and lifecycle status. Role is non-empty if and only if Status is
// StatusAuthenticated.
type Session struct {
	Identity string
	Email    string
	Role     Role
	Status   SessionStatus
	Device   string
}

// Authenticated reports whether the session carries a fully resolved identity.
func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

// Profile is the per-identity document stored under the users collection.
type Profile struct {
	Email string `json:"email" firestore:"email"`
	Role  string `json:"role" firestore:"role"`
}
