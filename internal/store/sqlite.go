package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/joescharf/bugboard/internal/apierr"
	"github.com/joescharf/bugboard/internal/models"
	"github.com/joescharf/bugboard/internal/query"
	"github.com/joescharf/bugboard/internal/search"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// tsLayout is fixed-width so TEXT timestamps sort chronologically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

const bugColumns = `b.id, b.title, b.description, b.status, b.priority, b.steps_to_reproduce,
	b.expected_behavior, b.actual_behavior, b.env_os, b.env_browser, b.env_device,
	b.reporter, b.assignee, b.tags, b.created_at, b.updated_at`

// filterColumns and sortColumns whitelist the fields a query may reference.
var (
	filterColumns = map[string]string{
		"status":   "b.status",
		"priority": "b.priority",
	}
	sortColumns = map[string]string{
		"createdAt": "b.created_at",
		"updatedAt": "b.updated_at",
		"title":     "b.title",
	}
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access and avoids "database is locked" under load.
	db.SetMaxOpenConns(1)

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
		{"PRAGMA foreign_keys=ON", "enable foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p.what, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindMany(ctx context.Context, pred query.Predicate, order query.Sort, skip, limit int) ([]*models.Bug, error) {
	where, args := sqliteWhere(pred)
	q := "SELECT " + bugColumns + " FROM bugs b" + where + sqliteOrderBy(order)
	if limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, limit, max(skip, 0))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bugs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	bugs := []*models.Bug{}
	for rows.Next() {
		b, err := scanBug(rows)
		if err != nil {
			return nil, err
		}
		bugs = append(bugs, b)
	}
	return bugs, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, pred query.Predicate) (int64, error) {
	where, args := sqliteWhere(pred)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bugs b"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bugs: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*models.Bug, error) {
	key, err := checkID(id)
	if err != nil {
		return nil, err
	}
	return s.findByID(ctx, s.db, key)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) findByID(ctx context.Context, q queryRower, id string) (*models.Bug, error) {
	row := q.QueryRowContext(ctx, "SELECT "+bugColumns+" FROM bugs b WHERE b.id = ?", id)
	b, err := scanBug(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bug: %w", err)
	}
	return b, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, b *models.Bug) error {
	if b.ID == "" {
		b.ID = newULID()
	} else {
		key, err := checkID(b.ID)
		if err != nil {
			return err
		}
		b.ID = key
	}
	if b.StepsToReproduce == nil {
		b.StepsToReproduce = []string{}
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	if err := checkSchema(b); err != nil {
		return err
	}

	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.CreatedAt

	steps, tags, err := encodeLists(b)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bugs (id, title, description, status, priority, steps_to_reproduce,
			expected_behavior, actual_behavior, env_os, env_browser, env_device,
			reporter, assignee, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Title, b.Description, string(b.Status), string(b.Priority), steps,
		b.ExpectedBehavior, b.ActualBehavior, b.Environment.OS, b.Environment.Browser, b.Environment.Device,
		b.Reporter, b.Assignee, tags, b.CreatedAt.Format(tsLayout), b.UpdatedAt.Format(tsLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert bug: %w", apierr.ErrDuplicate)
		}
		return fmt.Errorf("insert bug: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateByID(ctx context.Context, id string, patch models.BugInput) (*models.Bug, error) {
	key, err := checkID(id)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	b, err := s.findByID(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	patch.ApplyTo(b)
	if err := checkSchema(b); err != nil {
		return nil, err
	}
	b.UpdatedAt = time.Now().UTC()
	if b.UpdatedAt.Before(b.CreatedAt) {
		b.UpdatedAt = b.CreatedAt
	}

	steps, tags, err := encodeLists(b)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE bugs SET title=?, description=?, status=?, priority=?, steps_to_reproduce=?,
			expected_behavior=?, actual_behavior=?, env_os=?, env_browser=?, env_device=?,
			reporter=?, assignee=?, tags=?, updated_at=?
		WHERE id=?`,
		b.Title, b.Description, string(b.Status), string(b.Priority), steps,
		b.ExpectedBehavior, b.ActualBehavior, b.Environment.OS, b.Environment.Browser, b.Environment.Device,
		b.Reporter, b.Assignee, tags, b.UpdatedAt.Format(tsLayout), key,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("update bug: %w", apierr.ErrDuplicate)
		}
		return nil, fmt.Errorf("update bug: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return b, nil
}

func (s *SQLiteStore) DeleteByID(ctx context.Context, id string) error {
	key, err := checkID(id)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM bugs WHERE id = ?", key)
	if err != nil {
		return fmt.Errorf("delete bug: %w", err)
	}
	return deletedOrNotFound(result, key)
}

// deletedOrNotFound maps a DELETE result with no affected rows to NotFound.
func deletedOrNotFound(result sql.Result, key string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete bug: %w", err)
	}
	if n == 0 {
		return notFound(key)
	}
	return nil
}

// TextSearch ranks with FTS5 bm25, negated so that higher is better.
func (s *SQLiteStore) TextSearch(ctx context.Context, terms []string) ([]search.Match, error) {
	if len(terms) == 0 {
		return []search.Match{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+bugColumns+", -bm25(bugs_fts) AS score"+
			" FROM bugs_fts JOIN bugs b ON b.seq = bugs_fts.rowid"+
			" WHERE bugs_fts MATCH ?",
		search.MatchExpression(terms),
	)
	if err != nil {
		return nil, fmt.Errorf("search bugs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := []search.Match{}
	for rows.Next() {
		var score float64
		b, err := scanBug(rows, &score)
		if err != nil {
			return nil, err
		}
		matches = append(matches, search.Match{Bug: b, Score: score})
	}
	return matches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBug(row rowScanner, extra ...any) (*models.Bug, error) {
	b := &models.Bug{}
	var status, priority, steps, tags, createdAt, updatedAt string

	dest := []any{&b.ID, &b.Title, &b.Description, &status, &priority, &steps,
		&b.ExpectedBehavior, &b.ActualBehavior, &b.Environment.OS, &b.Environment.Browser, &b.Environment.Device,
		&b.Reporter, &b.Assignee, &tags, &createdAt, &updatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan bug: %w", err)
	}

	b.Status = models.BugStatus(status)
	b.Priority = models.BugPriority(priority)
	if err := json.Unmarshal([]byte(steps), &b.StepsToReproduce); err != nil {
		return nil, fmt.Errorf("decode steps for bug %s: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for bug %s: %w", b.ID, err)
	}
	if b.StepsToReproduce == nil {
		b.StepsToReproduce = []string{}
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}

	var err error
	if b.CreatedAt, err = time.Parse(tsLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for bug %s: %w", b.ID, err)
	}
	if b.UpdatedAt, err = time.Parse(tsLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for bug %s: %w", b.ID, err)
	}
	return b, nil
}

func encodeLists(b *models.Bug) (steps, tags string, err error) {
	sj, err := json.Marshal(b.StepsToReproduce)
	if err != nil {
		return "", "", fmt.Errorf("encode steps: %w", err)
	}
	tj, err := json.Marshal(b.Tags)
	if err != nil {
		return "", "", fmt.Errorf("encode tags: %w", err)
	}
	return string(sj), string(tj), nil
}

func sqliteWhere(pred query.Predicate) (string, []any) {
	var conditions []string
	var args []any
	for _, t := range pred.Terms {
		col, ok := filterColumns[t.Field]
		if !ok {
			continue
		}
		conditions = append(conditions, col+" = ?")
		args = append(args, t.Value)
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func sqliteOrderBy(order query.Sort) string {
	col, ok := sortColumns[order.Field]
	if !ok {
		col, order.Desc = sortColumns["createdAt"], true
	}
	dir := "ASC"
	if order.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, b.id %s", col, dir, dir)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch code := se.Code(); code {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(se.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}
