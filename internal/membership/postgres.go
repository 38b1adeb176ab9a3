package membership

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const userColumns = `id, name, email, global_role, status, coalesce(sso_source, ''), coalesce(password_hash, ''), last_login, created_at`

func (s *PGStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, name, email, global_role, status, sso_source, password_hash, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.Name, u.Email, string(u.GlobalRole), string(u.Status),
		nullable(u.SSOSource), nullable(u.PasswordHash), u.CreatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PGStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return s.scanUser(ctx, row)
}

func (s *PGStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email)
	return s.scanUser(ctx, row)
}

func (s *PGStore) scanUser(ctx context.Context, row *sql.Row) (*User, error) {
	var (
		u         User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.GlobalRole, &u.Status, &u.SSOSource, &u.PasswordHash, &lastLogin, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		ts := lastLogin.Time
		u.LastLogin = &ts
	}
	memberships, err := s.membershipsFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.ProjectRoles = memberships
	return &u, nil
}

func (s *PGStore) membershipsFor(ctx context.Context, userID string) ([]ProjectMembership, error) {
	rows, err := s.db.QueryContext(ctx,
		`select m.project_id, p.key, p.name, m.role, m.added_at
		 from project_memberships m
		 join projects p on p.id = m.project_id
		 where m.user_id=$1 order by m.added_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memberships := make([]ProjectMembership, 0)
	for rows.Next() {
		var m ProjectMembership
		if err := rows.Scan(&m.ProjectID, &m.ProjectKey, &m.ProjectName, &m.Role, &m.AddedAt); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (s *PGStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var (
			u         User
			lastLogin sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.GlobalRole, &u.Status, &u.SSOSource, &u.PasswordHash, &lastLogin, &u.CreatedAt); err != nil {
			return nil, err
		}
		if lastLogin.Valid {
			ts := lastLogin.Time
			u.LastLogin = &ts
		}
		u.ProjectRoles = make([]ProjectMembership, 0)
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, u := range users {
		memberships, err := s.membershipsFor(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		u.ProjectRoles = memberships
	}
	return users, nil
}

func (s *PGStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+"=$"+strconv.Itoa(len(args)))
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.GlobalRole != nil {
		add("global_role", string(*upd.GlobalRole))
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.PasswordHash != nil {
		add("password_hash", *upd.PasswordHash)
	}
	if upd.LastLogin != nil {
		add("last_login", *upd.LastLogin)
	}
	if len(sets) > 0 {
		args = append(args, id)
		res, err := s.db.ExecContext(ctx,
			`update users set `+strings.Join(sets, ", ")+` where id=$`+strconv.Itoa(len(args)), args...)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, ErrNotFound
		}
	}
	return s.GetUser(ctx, id)
}

func (s *PGStore) DeleteUser(ctx context.Context, id string) error {
	// project_memberships rows cascade via the schema's foreign key.
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) UpsertProjectRole(ctx context.Context, userID string, m ProjectMembership) (*User, error) {
	_, err := s.db.ExecContext(ctx,
		`insert into project_memberships(user_id, project_id, role, added_at)
		 values($1,$2,$3,$4)
		 on conflict (user_id, project_id) do update set role = excluded.role`,
		userID, m.ProjectID, string(m.Role), m.AddedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

func (s *PGStore) RemoveProjectRole(ctx context.Context, userID, projectID string) (*User, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from project_memberships where user_id=$1 and project_id=$2`, userID, projectID)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.GetUser(ctx, userID)
}

func (s *PGStore) CreateProject(ctx context.Context, p *Project) error {
	_, err := s.db.ExecContext(ctx,
		`insert into projects(id, key, name, created_at) values($1,$2,$3,$4)`,
		p.ID, p.Key, p.Name, p.CreatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PGStore) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `select id, key, name, created_at from projects where id=$1`, id)
	var p Project
	if err := row.Scan(&p.ID, &p.Key, &p.Name, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `select id, key, name, created_at from projects order by key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Key, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SQLSTATE prefixes; pgx surfaces them in the error string when used through
// database/sql without driver-specific error unwrapping.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23503")
}
