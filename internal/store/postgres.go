package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/joescharf/bugboard/internal/apierr"
	"github.com/joescharf/bugboard/internal/models"
	"github.com/joescharf/bugboard/internal/query"
	"github.com/joescharf/bugboard/internal/search"
)

type bugRow struct {
	Seq              int64          `gorm:"column:seq;primaryKey;autoIncrement"`
	ID               string         `gorm:"column:id;type:char(26);uniqueIndex;not null"`
	Title            string         `gorm:"column:title;not null"`
	Description      string         `gorm:"column:description;not null"`
	Status           string         `gorm:"column:status;not null;default:'open';index"`
	Priority         string         `gorm:"column:priority;not null;default:'medium';index"`
	StepsToReproduce datatypes.JSON `gorm:"column:steps_to_reproduce;type:jsonb;not null;default:'[]'"`
	ExpectedBehavior string         `gorm:"column:expected_behavior;not null;default:''"`
	ActualBehavior   string         `gorm:"column:actual_behavior;not null;default:''"`
	EnvOS            string         `gorm:"column:env_os;not null;default:''"`
	EnvBrowser       string         `gorm:"column:env_browser;not null;default:''"`
	EnvDevice        string         `gorm:"column:env_device;not null;default:''"`
	Reporter         string         `gorm:"column:reporter;not null"`
	Assignee         string         `gorm:"column:assignee;not null;default:''"`
	Tags             datatypes.JSON `gorm:"column:tags;type:jsonb;not null;default:'[]'"`
	CreatedAt        time.Time      `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_bugs_created_at,sort:desc"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (bugRow) TableName() string { return "bugs" }

type scoredRow struct {
	bugRow `gorm:"embedded"`
	Score  float64 `gorm:"column:score"`
}

// searchDDL adds the generated tsvector column and its GIN index.
var searchDDL = []string{
	`ALTER TABLE bugs ADD COLUMN IF NOT EXISTS search_vector tsvector
		GENERATED ALWAYS AS (to_tsvector('english', coalesce(title, '') || ' ' || coalesce(description, ''))) STORED`,
	`CREATE INDEX IF NOT EXISTS idx_bugs_search_vector ON bugs USING GIN (search_vector)`,
}

// PostgresStore implements Store on PostgreSQL through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore connects to the database at dsn.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	gormLog := gormLogger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing gorm handle.
func NewPostgresStoreFromDB(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&bugRow{}); err != nil {
		return fmt.Errorf("migrate bugs: %w", err)
	}
	for _, stmt := range searchDDL {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate bug search index: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) FindMany(ctx context.Context, pred query.Predicate, order query.Sort, skip, limit int) ([]*models.Bug, error) {
	tx := pgWhere(s.db.WithContext(ctx).Model(&bugRow{}), pred)
	for _, c := range pgOrder(order) {
		tx = tx.Order(c)
	}
	if limit > 0 {
		tx = tx.Limit(limit).Offset(max(skip, 0))
	}

	var rows []bugRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list bugs: %w", err)
	}
	bugs := make([]*models.Bug, 0, len(rows))
	for i := range rows {
		b, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		bugs = append(bugs, b)
	}
	return bugs, nil
}

func (s *PostgresStore) Count(ctx context.Context, pred query.Predicate) (int64, error) {
	var n int64
	if err := pgWhere(s.db.WithContext(ctx).Model(&bugRow{}), pred).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count bugs: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Bug, error) {
	key, err := checkID(id)
	if err != nil {
		return nil, err
	}
	var row bugRow
	err = s.db.WithContext(ctx).Where("id = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("get bug: %w", err)
	}
	return row.toModel()
}

func (s *PostgresStore) Insert(ctx context.Context, b *models.Bug) error {
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
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	// timestamptz keeps microseconds.
	b.CreatedAt = b.CreatedAt.UTC().Truncate(time.Microsecond)
	b.UpdatedAt = b.CreatedAt

	row, err := fromModel(b)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("insert bug: %w", apierr.ErrDuplicate)
		}
		return fmt.Errorf("insert bug: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateByID(ctx context.Context, id string, patch models.BugInput) (*models.Bug, error) {
	key, err := checkID(id)
	if err != nil {
		return nil, err
	}

	var out *models.Bug
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row bugRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", key).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(key)
		}
		if err != nil {
			return fmt.Errorf("get bug: %w", err)
		}

		b, err := row.toModel()
		if err != nil {
			return err
		}
		patch.ApplyTo(b)
		if err := checkSchema(b); err != nil {
			return err
		}
		b.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
		if b.UpdatedAt.Before(b.CreatedAt) {
			b.UpdatedAt = b.CreatedAt
		}

		updated, err := fromModel(b)
		if err != nil {
			return err
		}
		updated.Seq = row.Seq
		if err := tx.Save(&updated).Error; err != nil {
			if isPgUniqueViolation(err) {
				return fmt.Errorf("update bug: %w", apierr.ErrDuplicate)
			}
			return fmt.Errorf("update bug: %w", err)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id string) error {
	key, err := checkID(id)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Where("id = ?", key).Delete(&bugRow{})
	if result.Error != nil {
		return fmt.Errorf("delete bug: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound(key)
	}
	return nil
}

// TextSearch ranks with ts_rank over the english tsvector of title and description.
func (s *PostgresStore) TextSearch(ctx context.Context, terms []string) ([]search.Match, error) {
	matches := []search.Match{}
	if len(terms) == 0 {
		return matches, nil
	}
	tsq := strings.Join(terms, " | ")

	var rows []scoredRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT bugs.*, ts_rank(search_vector, to_tsquery('english', ?)) AS score
		FROM bugs WHERE search_vector @@ to_tsquery('english', ?)`,
		tsq, tsq,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search bugs: %w", err)
	}
	for i := range rows {
		b, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		matches = append(matches, search.Match{Bug: b, Score: rows[i].Score})
	}
	return matches, nil
}

func pgWhere(tx *gorm.DB, pred query.Predicate) *gorm.DB {
	for _, t := range pred.Terms {
		switch t.Field {
		case "status", "priority":
			tx = tx.Where(t.Field+" = ?", t.Value)
		}
	}
	return tx
}

func pgOrder(order query.Sort) []string {
	col := map[string]string{
		"createdAt": "created_at",
		"updatedAt": "updated_at",
		"title":     "title",
	}[order.Field]
	if col == "" {
		col, order.Desc = "created_at", true
	}
	dir := "ASC"
	if order.Desc {
		dir = "DESC"
	}
	return []string{col + " " + dir, "id " + dir}
}

func fromModel(b *models.Bug) (bugRow, error) {
	steps, err := json.Marshal(b.StepsToReproduce)
	if err != nil {
		return bugRow{}, fmt.Errorf("encode steps: %w", err)
	}
	tags, err := json.Marshal(b.Tags)
	if err != nil {
		return bugRow{}, fmt.Errorf("encode tags: %w", err)
	}
	return bugRow{
		ID:               b.ID,
		Title:            b.Title,
		Description:      b.Description,
		Status:           string(b.Status),
		Priority:         string(b.Priority),
		StepsToReproduce: datatypes.JSON(steps),
		ExpectedBehavior: b.ExpectedBehavior,
		ActualBehavior:   b.ActualBehavior,
		EnvOS:            b.Environment.OS,
		EnvBrowser:       b.Environment.Browser,
		EnvDevice:        b.Environment.Device,
		Reporter:         b.Reporter,
		Assignee:         b.Assignee,
		Tags:             datatypes.JSON(tags),
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}, nil
}

func (r *bugRow) toModel() (*models.Bug, error) {
	b := &models.Bug{
		ID:               r.ID,
		Title:            r.Title,
		Description:      r.Description,
		Status:           models.BugStatus(r.Status),
		Priority:         models.BugPriority(r.Priority),
		StepsToReproduce: []string{},
		ExpectedBehavior: r.ExpectedBehavior,
		ActualBehavior:   r.ActualBehavior,
		Environment:      models.Environment{OS: r.EnvOS, Browser: r.EnvBrowser, Device: r.EnvDevice},
		Reporter:         r.Reporter,
		Assignee:         r.Assignee,
		Tags:             []string{},
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if len(r.StepsToReproduce) > 0 {
		if err := json.Unmarshal(r.StepsToReproduce, &b.StepsToReproduce); err != nil {
			return nil, fmt.Errorf("decode steps for bug %s: %w", r.ID, err)
		}
	}
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &b.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for bug %s: %w", r.ID, err)
		}
	}
	return b, nil
}

func isPgUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.TrimSpace(pgErr.Code) == "23505"
	}
	return false
}
