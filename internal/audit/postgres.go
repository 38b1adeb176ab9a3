package audit

import (
	"context"
	"database/sql"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. The audit_log table carries a
// bigserial seq column used as the timestamp tiebreak; rows are never
// updated or deleted.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, user_id, action, resource, details, ip_address, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID, entry.UserID, entry.Action, entry.Resource, entry.Details,
		nullable(entry.IPAddress), entry.Timestamp,
	)
	return err
}

func (s *PGStore) ListByUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, action, resource, details, coalesce(ip_address, ''), created_at
		 from audit_log where user_id=$1
		 order by created_at desc, seq desc limit $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Resource, &e.Details, &e.IPAddress, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
