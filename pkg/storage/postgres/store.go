// Package postgres implements every store interface on PostgreSQL through
// lib/pq. Multi-row operations such as role deletion with reassignment and
// template deletion with cascade run in a single transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/orgs"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/resources"
)

const uniqueViolation = "23505"

// Store is the PostgreSQL store. Writes and transactions go to the primary;
// standalone reads go through reader, which may pick a replica.
type Store struct {
	db     *sql.DB
	reader func() *sql.DB
}

// New creates a store reading and writing through db
func New(db *sql.DB) *Store {
	return &Store{db: db, reader: func() *sql.DB { return db }}
}

// NewWithReplicas creates a store that spreads reads across cm's replicas
func NewWithReplicas(cm *ConnectionManager) *Store {
	return &Store{db: cm.Primary(), reader: cm.Replica}
}

var (
	_ auth.UserStore       = (*Store)(nil)
	_ rbac.MembershipStore = (*Store)(nil)
	_ rbac.CustomRoleStore = (*Store)(nil)
	_ rbac.TemplateStore   = (*Store)(nil)
	_ rbac.OverrideStore   = (*Store)(nil)
	_ orgs.Store           = (*Store)(nil)
	_ resources.Store      = (*Store)(nil)
)

// DB returns the primary connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// HealthCheck pings the primary
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the primary connection
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// translate maps driver errors onto the store sentinels.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperrors.ErrDuplicate
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// expectOne turns a zero-row update into ErrNotFound.
func expectOne(op string, res sql.Result, err error) error {
	if err != nil {
		return translate(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json column: %w", err)
	}
	return data, nil
}

func unmarshalJSON(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	return nil
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []interface{}
}

// add appends cond, replacing every "?" with the next placeholder bound to
// arg.
func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// next returns the placeholder for an argument appended after the
// conditions.
func (w *where) next(arg interface{}) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}
