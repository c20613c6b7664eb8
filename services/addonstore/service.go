package addonstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"streamgate/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when no addon with the requested id exists.
var ErrNotFound = errors.New("addon not found")

// ErrURLRequired is returned when a create is attempted without a URL.
var ErrURLRequired = errors.New("addon url is required")

// Service persists addon registrations in sqlite. The aggregation core never
// sees this type, only []models.Addon snapshots read through it.
type Service struct {
	db *sql.DB
}

// NewService opens (or creates) the addon database at path and applies
// pending migrations.
func NewService(path string) (*Service, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open addon database: %w", err)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply addon migrations: %w", err)
	}

	return &Service{db: db}, nil
}

// Close releases the underlying database.
func (s *Service) Close() error {
	return s.db.Close()
}

// List returns every registered addon ordered by configured precedence.
func (s *Service) List() ([]models.Addon, error) {
	rows, err := s.db.Query(`SELECT id, name, url, enabled, sort_order FROM addons ORDER BY sort_order ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list addons: %w", err)
	}
	defer rows.Close()

	addons := []models.Addon{}
	for rows.Next() {
		var a models.Addon
		if err := rows.Scan(&a.ID, &a.Name, &a.URL, &a.Enabled, &a.Order); err != nil {
			return nil, fmt.Errorf("scan addon row: %w", err)
		}
		addons = append(addons, a)
	}
	return addons, rows.Err()
}

// Get returns one addon by id, or ErrNotFound.
func (s *Service) Get(id string) (*models.Addon, error) {
	var a models.Addon
	err := s.db.QueryRow(`SELECT id, name, url, enabled, sort_order FROM addons WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.URL, &a.Enabled, &a.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get addon %s: %w", id, err)
	}
	return &a, nil
}

// Create registers a new addon with a server-assigned id, enabled by default
// and ordered after every existing registration.
func (s *Service) Create(name, url string) (models.Addon, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return models.Addon{}, ErrURLRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = url
	}

	a := models.Addon{
		ID:      uuid.NewString(),
		Name:    name,
		URL:     url,
		Enabled: true,
	}

	err := s.db.QueryRow(`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM addons`).Scan(&a.Order)
	if err != nil {
		return models.Addon{}, fmt.Errorf("next addon order: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO addons (id, name, url, enabled, sort_order) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.URL, a.Enabled, a.Order,
	)
	if err != nil {
		return models.Addon{}, fmt.Errorf("insert addon: %w", err)
	}
	return a, nil
}

// Update applies a partial update and returns the stored record.
func (s *Service) Update(id string, upd models.AddonUpdate) (*models.Addon, error) {
	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil && strings.TrimSpace(*upd.Name) != "" {
		current.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Enabled != nil {
		current.Enabled = *upd.Enabled
	}
	if upd.Order != nil {
		current.Order = *upd.Order
	}

	_, err = s.db.Exec(
		`UPDATE addons SET name = ?, enabled = ?, sort_order = ? WHERE id = ?`,
		current.Name, current.Enabled, current.Order, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update addon %s: %w", id, err)
	}
	return current, nil
}

// Delete removes an addon registration, or returns ErrNotFound.
func (s *Service) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM addons WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete addon %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
