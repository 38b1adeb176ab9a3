package membership

import "context"

// Store describes persistence for users, their project memberships and the
// project registry. Implementations must keep email unique, allow at most one
// membership per (user, project), and cascade membership removal on user
// deletion. Concurrent writes to the same user resolve last-write-wins.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error)
	DeleteUser(ctx context.Context, id string) error

	// UpsertProjectRole inserts the membership or replaces the role of an
	// existing one; calling it twice with identical inputs is a no-op.
	UpsertProjectRole(ctx context.Context, userID string, m ProjectMembership) (*User, error)
	RemoveProjectRole(ctx context.Context, userID, projectID string) (*User, error)

	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
}
