package membership

import (
	"time"

	"github.com/carlosarta/haida/internal/rbac"
)

// Status is the user lifecycle state. Users are created pending on invite,
// become active on first successful login or explicit activation, and may be
// toggled active/inactive by an administrator. There is no deleted status;
// deletion removes the record outright.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusInactive:
		return true
	}
	return false
}

// ProjectMembership grants one project role to a user within one project.
// A user holds at most one membership per project.
type ProjectMembership struct {
	ProjectID   string           `json:"project_id"`
	ProjectKey  string           `json:"project_key"`
	ProjectName string           `json:"project_name"`
	Role        rbac.ProjectRole `json:"role"`
	AddedAt     time.Time        `json:"added_at"`
}

// User is a platform account with exactly one global role and zero or more
// project memberships. Email is unique across the store.
type User struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Email        string              `json:"email"`
	GlobalRole   rbac.GlobalRole     `json:"global_role"`
	Status       Status              `json:"status"`
	SSOSource    string              `json:"sso_source,omitempty"`
	ProjectRoles []ProjectMembership `json:"project_roles"`
	LastLogin    *time.Time          `json:"last_login,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	PasswordHash string              `json:"-"`
}

// Membership returns the user's membership in the given project, if any.
func (u *User) Membership(projectID string) (ProjectMembership, bool) {
	for _, m := range u.ProjectRoles {
		if m.ProjectID == projectID {
			return m, true
		}
	}
	return ProjectMembership{}, false
}

// Project is an entry in the project registry that memberships reference.
type Project struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UserUpdate describes a partial user mutation; nil fields are left as-is.
type UserUpdate struct {
	Name         *string
	GlobalRole   *rbac.GlobalRole
	Status       *Status
	PasswordHash *string
	LastLogin    *time.Time
}
