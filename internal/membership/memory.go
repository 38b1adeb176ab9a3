package membership

import (
	"context"
	"sort"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory implements Store with in-process concurrency safety. Callers always
// receive copies; internal records never escape the lock.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]*User
	emails   map[string]string // lowercased email -> user id
	projects map[string]*Project
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*User),
		emails:   make(map[string]string),
		projects: make(map[string]*Project),
	}
}

func (m *Memory) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return ErrConflict
	}
	if _, ok := m.emails[u.Email]; ok {
		return ErrConflict
	}
	m.users[u.ID] = copyUser(u)
	m.emails[u.Email] = u.ID
	return nil
}

func (m *Memory) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(m.users[id]), nil
}

func (m *Memory) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (m *Memory) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.GlobalRole != nil {
		u.GlobalRole = *upd.GlobalRole
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.LastLogin != nil {
		ts := *upd.LastLogin
		u.LastLogin = &ts
	}
	return copyUser(u), nil
}

func (m *Memory) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.emails, u.Email)
	delete(m.users, id)
	return nil
}

func (m *Memory) UpsertProjectRole(ctx context.Context, userID string, membership ProjectMembership) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	replaced := false
	for i := range u.ProjectRoles {
		if u.ProjectRoles[i].ProjectID == membership.ProjectID {
			// Keep the original join time; only the role moves.
			membership.AddedAt = u.ProjectRoles[i].AddedAt
			u.ProjectRoles[i] = membership
			replaced = true
			break
		}
	}
	if !replaced {
		u.ProjectRoles = append(u.ProjectRoles, membership)
	}
	return copyUser(u), nil
}

func (m *Memory) RemoveProjectRole(ctx context.Context, userID, projectID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	for i := range u.ProjectRoles {
		if u.ProjectRoles[i].ProjectID == projectID {
			u.ProjectRoles = append(u.ProjectRoles[:i], u.ProjectRoles[i+1:]...)
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateProject(ctx context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; ok {
		return ErrConflict
	}
	for _, existing := range m.projects {
		if existing.Key == p.Key {
			return ErrConflict
		}
	}
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *Memory) GetProject(ctx context.Context, id string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListProjects(ctx context.Context) ([]*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	projects := make([]*Project, 0, len(m.projects))
	for _, p := range m.projects {
		cp := *p
		projects = append(projects, &cp)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Key < projects[j].Key })
	return projects, nil
}

func copyUser(u *User) *User {
	out := *u
	out.ProjectRoles = make([]ProjectMembership, len(u.ProjectRoles))
	copy(out.ProjectRoles, u.ProjectRoles)
	if u.LastLogin != nil {
		ts := *u.LastLogin
		out.LastLogin = &ts
	}
	return &out
}
