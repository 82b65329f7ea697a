// Package storage implements the SQLite-backed persistent store: users,
// seeded categories, owner-scoped transactions, and the aggregate queries
// the reporting engine is built on. Amounts are stored as integer cents so
// sums stay exact.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a row does not exist for the requesting
	// owner. Rows owned by another user are indistinguishable from absent
	// rows, which prevents cross-user id enumeration.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when an email unique constraint is violated.
	ErrEmailTaken = errors.New("email already registered")
)

// TransactionFilter narrows ListTransactions. Zero-valued fields impose no
// constraint; supplied fields combine as a conjunction.
type TransactionFilter struct {
	Kind     core.Kind
	DateFrom core.Date
	DateTo   core.Date
	Category string
}

// CategoryTotal is one (category, kind) aggregation row.
type CategoryTotal struct {
	Category   string
	Kind       core.Kind
	TotalCents int64
}

// PeriodBucket is one calendar-month aggregation row.
type PeriodBucket struct {
	Period     string // YYYY-MM
	Kind       core.Kind
	TotalCents int64
	Count      int64
}

// CategoryStat is a CategoryTotal with a row count for mean computation.
type CategoryStat struct {
	Category   string
	Kind       core.Kind
	TotalCents int64
	Count      int64
}

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and runs
// all pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the underlying database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error, constraint string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+constraint)
}

// CreateUser inserts a new user and returns the stored record.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, passwordHash string) (core.User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		name, email, passwordHash, now, now)
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return core.User{}, ErrEmailTaken
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("user insert id: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", id, "email", email)

	return core.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

const userColumns = `id, name, email, password_hash, created_at, updated_at`

func scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (core.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// UpdateUserProfile applies the supplied name and/or email to the user
// record. Nil fields are left untouched; at least one must be set.
func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, id int64, name, email *string) (core.User, error) {
	if name == nil && email == nil {
		return core.User{}, core.ErrEmptyPatch
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *name)
	}
	if email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *email)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return core.User{}, ErrEmailTaken
		}
		return core.User{}, fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.User{}, fmt.Errorf("update user rows affected: %w", err)
	}
	if affected == 0 {
		return core.User{}, ErrNotFound
	}

	return s.GetUserByID(ctx, id)
}

// ListCategories returns the seeded categories ordered by name, optionally
// restricted to one kind. An empty kind imposes no constraint.
func (s *SQLiteStore) ListCategories(ctx context.Context, kind core.Kind) ([]core.Category, error) {
	query := `SELECT id, name, kind FROM categories`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY name, kind`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []core.Category{}
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Kind); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

const transactionColumns = `id, user_id, description, amount_cents, kind, category, date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t       core.Transaction
		dateStr string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Description, &t.Amount.Cents, &t.Kind,
		&t.Category, &dateStr, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Date, err = core.ParseDate(dateStr)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored date %q: %w", dateStr, err)
	}
	return t, nil
}

// CreateTransaction validates and inserts a transaction for owner, returning
// the stored record with its generated id and timestamps.
func (s *SQLiteStore) CreateTransaction(ctx context.Context, owner int64, draft core.Transaction) (core.Transaction, error) {
	draft.UserID = owner
	if err := draft.Validate(); err != nil {
		return core.Transaction{}, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, description, amount_cents, kind, category, date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		owner, draft.Description, draft.Amount.Cents, string(draft.Kind),
		draft.Category, draft.Date.String(), now, now)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction insert id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", id,
		"user_id", owner,
		"kind", draft.Kind,
		"amount_cents", draft.Amount.Cents,
		"category", draft.Category)

	draft.ID = id
	draft.CreatedAt = now
	draft.UpdatedAt = now
	return draft, nil
}

// ListTransactions returns owner's transactions matching the filter, most
// recent date first, ties broken by insertion order.
func (s *SQLiteStore) ListTransactions(ctx context.Context, owner int64, f TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`
	args := []any{owner}

	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	if !f.DateFrom.IsZero() {
		query += ` AND date >= ?`
		args = append(args, f.DateFrom.String())
	}
	if !f.DateTo.IsZero() {
		query += ` AND date <= ?`
		args = append(args, f.DateTo.String())
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	query += ` ORDER BY date DESC, created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, owner, id int64) (core.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, owner))
}

// UpdateTransaction applies the patch to owner's transaction inside one
// store transaction and returns the post-update record.
func (s *SQLiteStore) UpdateTransaction(ctx context.Context, owner, id int64, patch core.TransactionPatch) (core.Transaction, error) {
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin update transaction: %w", err)
	}
	defer tx.Rollback()

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Amount != nil {
		sets = append(sets, "amount_cents = ?")
		args = append(args, patch.Amount.Cents)
	}
	if patch.Kind != nil {
		sets = append(sets, "kind = ?")
		args = append(args, string(*patch.Kind))
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.Date != nil {
		sets = append(sets, "date = ?")
		args = append(args, patch.Date.String())
	}
	args = append(args, id, owner)

	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`, args...)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update rows affected: %w", err)
	}
	if affected == 0 {
		return core.Transaction{}, ErrNotFound
	}

	updated, err := scanTransaction(tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, owner))
	if err != nil {
		return core.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit update: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated", "transaction_id", id, "user_id", owner)
	return updated, nil
}

// DeleteTransaction removes owner's transaction. Deleting an absent or
// non-owned id reports ErrNotFound.
func (s *SQLiteStore) DeleteTransaction(ctx context.Context, owner, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", id, "user_id", owner)
	return nil
}

// monthRange returns the inclusive start and exclusive end date strings of a
// calendar month. Lexicographic comparison on YYYY-MM-DD is chronological.
func monthRange(year, month int) (string, string) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return start.Format("2006-01-02"), end.Format("2006-01-02")
}

// BalanceTotals returns owner's all-time income and expense sums in cents.
// A user with no transactions gets zeros.
func (s *SQLiteStore) BalanceTotals(ctx context.Context, owner int64) (incomeCents, expenseCents int64, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN kind = 'income' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'expense' THEN amount_cents ELSE 0 END), 0)
		 FROM transactions WHERE user_id = ?`, owner).Scan(&incomeCents, &expenseCents)
	if err != nil {
		return 0, 0, fmt.Errorf("balance totals: %w", err)
	}
	return incomeCents, expenseCents, nil
}

// MonthTotals returns owner's income and expense sums for one calendar month.
func (s *SQLiteStore) MonthTotals(ctx context.Context, owner int64, year, month int) (incomeCents, expenseCents int64, err error) {
	from, to := monthRange(year, month)
	err = s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN kind = 'income' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'expense' THEN amount_cents ELSE 0 END), 0)
		 FROM transactions WHERE user_id = ? AND date >= ? AND date < ?`,
		owner, from, to).Scan(&incomeCents, &expenseCents)
	if err != nil {
		return 0, 0, fmt.Errorf("month totals: %w", err)
	}
	return incomeCents, expenseCents, nil
}

// CategoryTotals groups one calendar month by (category, kind), summed
// amount descending. Category name breaks sum ties so the order is stable.
func (s *SQLiteStore) CategoryTotals(ctx context.Context, owner int64, year, month int) ([]CategoryTotal, error) {
	from, to := monthRange(year, month)
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, kind, SUM(amount_cents)
		 FROM transactions
		 WHERE user_id = ? AND date >= ? AND date < ?
		 GROUP BY category, kind
		 ORDER BY SUM(amount_cents) DESC, category ASC, kind ASC`,
		owner, from, to)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	totals := []CategoryTotal{}
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Kind, &ct.TotalCents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

// PeriodBuckets groups transactions with date in [from, to] by calendar
// month and kind, newest period first. An empty kind imposes no constraint.
func (s *SQLiteStore) PeriodBuckets(ctx context.Context, owner int64, from, to core.Date, kind core.Kind) ([]PeriodBucket, error) {
	query := `SELECT substr(date, 1, 7) AS period, kind, SUM(amount_cents), COUNT(*)
		 FROM transactions
		 WHERE user_id = ? AND date >= ? AND date <= ?`
	args := []any{owner, from.String(), to.String()}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` GROUP BY period, kind ORDER BY period DESC, kind ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("period buckets: %w", err)
	}
	defer rows.Close()

	buckets := []PeriodBucket{}
	for rows.Next() {
		var b PeriodBucket
		if err := rows.Scan(&b.Period, &b.Kind, &b.TotalCents, &b.Count); err != nil {
			return nil, fmt.Errorf("scan period bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// CategoryStats groups one calendar month by (category, kind) with sum and
// row count, summed amount descending.
func (s *SQLiteStore) CategoryStats(ctx context.Context, owner int64, year, month int) ([]CategoryStat, error) {
	from, to := monthRange(year, month)
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, kind, SUM(amount_cents), COUNT(*)
		 FROM transactions
		 WHERE user_id = ? AND date >= ? AND date < ?
		 GROUP BY category, kind
		 ORDER BY SUM(amount_cents) DESC, category ASC, kind ASC`,
		owner, from, to)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	defer rows.Close()

	stats := []CategoryStat{}
	for rows.Next() {
		var cs CategoryStat
		if err := rows.Scan(&cs.Category, &cs.Kind, &cs.TotalCents, &cs.Count); err != nil {
			return nil, fmt.Errorf("scan category stat: %w", err)
		}
		stats = append(stats, cs)
	}
	return stats, rows.Err()
}
