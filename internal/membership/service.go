package membership

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carlosarta/haida/internal/audit"
	"github.com/carlosarta/haida/internal/auth"
	"github.com/carlosarta/haida/internal/ids"
	"github.com/carlosarta/haida/internal/rbac"
)

// Service exposes the membership mutations. Every mutation checks the acting
// user's effective permissions server-side, either fully applies or fully
// fails, and appends exactly one audit entry on success. The append runs
// after the mutation commits; its failure never rolls the mutation back.
type Service struct {
	store Store
	log   *audit.Log
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service over store, recording mutations to log.
func NewService(store Store, log *audit.Log, opts ...ServiceOption) *Service {
	s := &Service{store: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requirePermission resolves the actor's global grants and checks one
// permission. Project roles do not enter user-administration checks; they
// only scope project resources.
func requirePermission(actor *User, resource rbac.Resource, action rbac.Action) error {
	if actor == nil {
		return fmt.Errorf("%w: acting user is required", ErrUnauthorized)
	}
	effective := rbac.EffectivePermissions(actor.GlobalRole, rbac.ProjectRoleNone)
	if !effective.Has(resource, action) {
		return fmt.Errorf("%w: %s lacks %s.%s", ErrUnauthorized, actor.GlobalRole, resource, action)
	}
	return nil
}

// Bootstrap creates the initial admin account. It only succeeds while the
// user table is empty, so a restart with the same env settings is a no-op.
func (s *Service) Bootstrap(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	existing, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: users already exist", ErrConflict)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	user := &User{
		ID:           ids.New(),
		Email:        email,
		GlobalRole:   rbac.GlobalRoleAdmin,
		Status:       StatusActive,
		PasswordHash: hash,
		ProjectRoles: make([]ProjectMembership, 0),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.Record(ctx, user.ID, "admin_bootstrapped", string(rbac.ResourceUsers),
		fmt.Sprintf("initial admin %s created", email))
	return user, nil
}

// Invite creates a pending user with the given global role. The invitee has
// no credentials until they set a password; first successful login activates
// the account.
func (s *Service) Invite(ctx context.Context, actor *User, email string, role rbac.GlobalRole) (*User, error) {
	if err := requirePermission(actor, rbac.ResourceUsers, rbac.ActionCreate); err != nil {
		return nil, err
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown global role %q", ErrInvalidInput, role)
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email %s is already registered", ErrConflict, email)
	} else if err != ErrNotFound {
		return nil, err
	}

	user := &User{
		ID:           ids.New(),
		Email:        email,
		GlobalRole:   role,
		Status:       StatusPending,
		ProjectRoles: make([]ProjectMembership, 0),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if err == ErrConflict {
			return nil, fmt.Errorf("%w: email %s is already registered", ErrConflict, email)
		}
		return nil, err
	}
	s.log.Record(ctx, user.ID, "user_invited", string(rbac.ResourceUsers),
		fmt.Sprintf("%s invited with global role %s by %s", email, role, actor.Email))
	return user, nil
}

// UpdateGlobalRole replaces the target's global role. Only admins and
// managers may change global roles, and the check happens here regardless of
// what the UI showed.
func (s *Service) UpdateGlobalRole(ctx context.Context, actor *User, userID string, role rbac.GlobalRole) (*User, error) {
	if actor == nil || !rbac.CanEditGlobalRoles(actor.GlobalRole) {
		return nil, fmt.Errorf("%w: global roles can only be edited by admins and managers", ErrUnauthorized)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown global role %q", ErrInvalidInput, role)
	}
	previous, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateUser(ctx, userID, UserUpdate{GlobalRole: &role})
	if err != nil {
		return nil, err
	}
	s.log.Record(ctx, userID, "role_changed", string(rbac.ResourceUsers),
		fmt.Sprintf("global role %s -> %s by %s", previous.GlobalRole, role, actor.Email))
	return updated, nil
}

// AssignProjectRole upserts the target's role in one project. The project
// must exist; repeating the call with identical inputs leaves a single
// membership, never two.
func (s *Service) AssignProjectRole(ctx context.Context, actor *User, userID, projectID string, role rbac.ProjectRole) (*User, error) {
	if err := requirePermission(actor, rbac.ResourceUsers, rbac.ActionManagePermissions); err != nil {
		return nil, err
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, fmt.Errorf("%w: project_id is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown project role %q", ErrInvalidInput, role)
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
		}
		return nil, err
	}
	updated, err := s.store.UpsertProjectRole(ctx, userID, ProjectMembership{
		ProjectID:   project.ID,
		ProjectKey:  project.Key,
		ProjectName: project.Name,
		Role:        role,
		AddedAt:     s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.log.Record(ctx, userID, "project_role_assigned", string(rbac.ResourceProjects),
		fmt.Sprintf("role %s in project %s by %s", role, project.Key, actor.Email))
	return updated, nil
}

// RemoveProjectRole deletes the target's membership in one project. The
// user's global-role grants are untouched.
func (s *Service) RemoveProjectRole(ctx context.Context, actor *User, userID, projectID string) (*User, error) {
	if err := requirePermission(actor, rbac.ResourceUsers, rbac.ActionManagePermissions); err != nil {
		return nil, err
	}
	updated, err := s.store.RemoveProjectRole(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	s.log.Record(ctx, userID, "project_role_removed", string(rbac.ResourceProjects),
		fmt.Sprintf("membership in project %s removed by %s", projectID, actor.Email))
	return updated, nil
}

// UpdateStatus toggles a user between active and inactive. Pending is a
// creation-time state and cannot be assigned.
func (s *Service) UpdateStatus(ctx context.Context, actor *User, userID string, status Status) (*User, error) {
	if err := requirePermission(actor, rbac.ResourceUsers, rbac.ActionUpdate); err != nil {
		return nil, err
	}
	if status != StatusActive && status != StatusInactive {
		return nil, fmt.Errorf("%w: status must be active or inactive", ErrInvalidInput)
	}
	updated, err := s.store.UpdateUser(ctx, userID, UserUpdate{Status: &status})
	if err != nil {
		return nil, err
	}
	s.log.Record(ctx, userID, "status_changed", string(rbac.ResourceUsers),
		fmt.Sprintf("status set to %s by %s", status, actor.Email))
	return updated, nil
}

// DeleteUser removes the user and cascades removal of every project
// membership referencing them.
func (s *Service) DeleteUser(ctx context.Context, actor *User, userID string) error {
	if err := requirePermission(actor, rbac.ResourceUsers, rbac.ActionDelete); err != nil {
		return err
	}
	target, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.log.Record(ctx, userID, "user_deleted", string(rbac.ResourceUsers),
		fmt.Sprintf("%s deleted by %s", target.Email, actor.Email))
	return nil
}

// SetPassword stores the target's credentials. Users may set their own
// password (how an invitee claims the account); anyone else needs
// users.manage.
func (s *Service) SetPassword(ctx context.Context, actor *User, userID, password string) error {
	if actor == nil || actor.ID != userID {
		if err := requirePermission(actor, rbac.ResourceUsers, rbac.ActionManage); err != nil {
			return err
		}
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := s.store.UpdateUser(ctx, userID, UserUpdate{PasswordHash: &hash}); err != nil {
		return err
	}
	s.log.Record(ctx, userID, "password_set", string(rbac.ResourceUsers), "credentials updated")
	return nil
}

// Authenticate verifies credentials and stamps the login. A pending user's
// first successful login activates the account; inactive users cannot log in.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if user.Status == StatusInactive {
		return nil, ErrUnauthorized
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}

	now := s.now().UTC()
	upd := UserUpdate{LastLogin: &now}
	if user.Status == StatusPending {
		active := StatusActive
		upd.Status = &active
	}
	updated, err := s.store.UpdateUser(ctx, user.ID, upd)
	if err != nil {
		return nil, err
	}
	if user.Status == StatusPending {
		s.log.Record(ctx, user.ID, "user_activated", string(rbac.ResourceUsers), "activated on first login")
	}
	return updated, nil
}

// GetUser fetches one user.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, id)
}

// ListUsers returns every user ordered by creation time.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.ListUsers(ctx)
}

// AuditTrail returns the target's mutation history, newest first.
func (s *Service) AuditTrail(ctx context.Context, userID string, limit int) ([]audit.Entry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.log.ListByUser(ctx, userID, limit)
}

// CreateProject registers a project that memberships can reference.
func (s *Service) CreateProject(ctx context.Context, actor *User, key, name string) (*Project, error) {
	if err := requirePermission(actor, rbac.ResourceProjects, rbac.ActionCreate); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(strings.ToUpper(key))
	name = strings.TrimSpace(name)
	if key == "" || name == "" {
		return nil, fmt.Errorf("%w: project key and name are required", ErrInvalidInput)
	}
	project := &Project{
		ID:        ids.New(),
		Key:       key,
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		if err == ErrConflict {
			return nil, fmt.Errorf("%w: project key %s is taken", ErrConflict, key)
		}
		return nil, err
	}
	return project, nil
}

// ListProjects returns the project registry ordered by key.
func (s *Service) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.store.ListProjects(ctx)
}
