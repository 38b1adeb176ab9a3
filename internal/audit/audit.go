package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/carlosarta/haida/internal/ids"
	"github.com/carlosarta/haida/internal/obs"
)

// Entry is one append-only record of a permission-affecting mutation.
// Entries are never edited or removed once appended.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ip_address,omitempty"`
}

// Store persists audit entries. Append never updates existing rows;
// ListByUser returns at most limit entries, newest first, ties broken by
// insertion order.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Entry, error)
}

type ctxKey string

const clientIPKey ctxKey = "audit_client_ip"

// WithClientIP attaches the caller's IP address to the context so appended
// entries can record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(clientIPKey).(string); ok {
		return v
	}
	return ""
}

// Log wraps a Store with fire-and-forget semantics: a failed append must
// never fail the mutation that triggered it, so Record swallows the error
// into a metric and a log line.
type Log struct {
	store Store
	now   func() time.Time
}

// NewLog builds a Log over store.
func NewLog(store Store) *Log {
	return &Log{store: store, now: time.Now}
}

// Record fills in identity, timestamp and caller IP, then appends.
func (l *Log) Record(ctx context.Context, userID, action, resource, details string) {
	entry := &Entry{
		ID:        ids.New(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Details:   details,
		Timestamp: l.now().UTC(),
		IPAddress: clientIPFromContext(ctx),
	}
	if err := l.store.Append(ctx, entry); err != nil {
		obs.AuditAppendFailed()
		line, _ := json.Marshal(map[string]any{
			"ts":     entry.Timestamp.Format(time.RFC3339Nano),
			"level":  "error",
			"msg":    "audit_append_failed",
			"user":   userID,
			"action": action,
			"error":  err.Error(),
		})
		obs.Logger().Println(string(line))
	}
}

// ListByUser reads back the trail for one user, newest first.
func (l *Log) ListByUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	return l.store.ListByUser(ctx, userID, limit)
}
