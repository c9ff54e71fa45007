/*
Package sqlite provides a SQLite-backed implementation of the persistence gateway.

PURPOSE:
  Implements condition.Store and condition.ParentStore using SQLite. The
  session only sees the gateway interface, so the same code runs against
  the in-memory store in tests.

KEY TABLES:
  parents:     Contracts, templates and proposals with their reference total
  conditions:  One row per payment condition, ordered per parent

INVARIANTS ENFORCED BY SCHEMA:
  - idx_conditions_parent_order: no two conditions of a parent share an order
  - unit_value is stored as decimal TEXT, never REAL
  - reference_total is stored in integer cents

REORDER:
  Orders are rewritten in two phases inside one transaction: every listed
  row first moves to a negative placeholder, then to its final order. The
  unique index never sees a transient collision, and a real collision
  rolls back the whole reorder.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, with WAL mode for concurrent readers.

USAGE:
  store, err := sqlite.New("./data/conditions.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  s, err := session.New(ctx, store, parentID, parent.ReferenceTotal)

SEE ALSO:
  - condition/store.go: Interface definitions
  - condition/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/condition-engine/condition"
	"github.com/warp/condition-engine/money"
)

const dateLayout = "2006-01-02"

// Store implements condition.Store and condition.ParentStore using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

var (
	_ condition.Store       = (*Store)(nil)
	_ condition.ParentStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS parents (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		reference_total INTEGER NOT NULL DEFAULT 0,
		stage TEXT NOT NULL DEFAULT 'draft',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conditions (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL,
		installment_type TEXT NOT NULL,
		count INTEGER NOT NULL,
		unit_value TEXT NOT NULL,
		value_kind TEXT NOT NULL,
		settlement TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT '',
		asset_json TEXT,
		correction_enabled INTEGER NOT NULL DEFAULT 0,
		correction_index TEXT NOT NULL DEFAULT '',
		grace_period INTEGER NOT NULL DEFAULT 0,
		first_due_date TEXT,
		event TEXT NOT NULL DEFAULT '',
		interval_days INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: siblings never share a display order
	CREATE UNIQUE INDEX IF NOT EXISTS idx_conditions_parent_order
		ON conditions(parent_id, sort_order);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CONDITION STORE (condition.Store interface)
// =============================================================================

const conditionColumns = `id, parent_id, installment_type, count, unit_value, value_kind,
	settlement, payment_method, asset_json, correction_enabled, correction_index,
	grace_period, first_due_date, event, interval_days, description, sort_order, created_at`

// List returns a parent's conditions in display order.
func (s *Store) List(ctx context.Context, parentID condition.ParentID) ([]condition.Condition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + conditionColumns + ` FROM conditions
		WHERE parent_id = ?
		ORDER BY sort_order ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conditions: %w", err)
	}
	defer rows.Close()

	var result []condition.Condition
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Create inserts c under parentID and assigns its ID.
func (s *Store) Create(ctx context.Context, parentID condition.ParentID, c condition.Condition) (condition.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = condition.ID(uuid.NewString())
	c.ParentID = parentID
	c.CreatedAt = s.now()

	args, err := conditionArgs(c)
	if err != nil {
		return condition.Condition{}, err
	}
	query := `INSERT INTO conditions (` + conditionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueConstraintError(err) {
			return condition.Condition{}, condition.ErrDuplicateOrder
		}
		return condition.Condition{}, fmt.Errorf("failed to insert condition: %w", err)
	}
	return c, nil
}

// Update merges patch over the stored condition.
func (s *Store) Update(ctx context.Context, id condition.ID, patch condition.Patch) (condition.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return condition.Condition{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+conditionColumns+` FROM conditions WHERE id = ?`, id)
	current, err := scanCondition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return condition.Condition{}, condition.ErrConditionNotFound
	}
	if err != nil {
		return condition.Condition{}, err
	}

	c := patch.Apply(current)
	args, err := conditionArgs(c)
	if err != nil {
		return condition.Condition{}, err
	}
	query := `UPDATE conditions SET
		installment_type = ?, count = ?, unit_value = ?, value_kind = ?,
		settlement = ?, payment_method = ?, asset_json = ?, correction_enabled = ?,
		correction_index = ?, grace_period = ?, first_due_date = ?, event = ?,
		interval_days = ?, description = ?
		WHERE id = ?`

	// args[2:16] are the mutable columns in conditionColumns order.
	if _, err := tx.ExecContext(ctx, query, append(args[2:16:16], c.ID)...); err != nil {
		return condition.Condition{}, fmt.Errorf("failed to update condition: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return condition.Condition{}, fmt.Errorf("failed to commit update: %w", err)
	}
	return c, nil
}

// Delete removes a condition.
func (s *Store) Delete(ctx context.Context, id condition.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM conditions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete condition: %w", err)
	}
	return requireAffected(res, condition.ErrConditionNotFound)
}

// Reorder applies all positions or none.
func (s *Store) Reorder(ctx context.Context, parentID condition.ParentID, positions []condition.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Phase 1: move listed rows out of the way.
	for i, p := range positions {
		res, err := tx.ExecContext(ctx,
			`UPDATE conditions SET sort_order = ? WHERE id = ? AND parent_id = ?`,
			-1-i, p.ID, parentID)
		if err != nil {
			return fmt.Errorf("failed to reorder condition: %w", err)
		}
		if err := requireAffected(res, condition.ErrConditionNotFound); err != nil {
			return err
		}
	}

	// Phase 2: final orders.
	for _, p := range positions {
		if _, err := tx.ExecContext(ctx,
			`UPDATE conditions SET sort_order = ? WHERE id = ?`, p.Order, p.ID); err != nil {
			if isUniqueConstraintError(err) {
				return condition.ErrDuplicateOrder
			}
			return fmt.Errorf("failed to reorder condition: %w", err)
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCondition(row rowScanner) (condition.Condition, error) {
	var (
		c                 condition.Condition
		unitValue         string
		assetJSON         sql.NullString
		correctionEnabled int
		firstDueDate      sql.NullString
		createdAt         string
	)

	err := row.Scan(
		&c.ID, &c.ParentID, &c.InstallmentType, &c.Count, &unitValue, &c.ValueKind,
		&c.Settlement, &c.PaymentMethod, &assetJSON, &correctionEnabled, &c.Correction.Index,
		&c.Correction.GracePeriodInstallments, &firstDueDate, &c.Due.Event, &c.Due.IntervalDays,
		&c.Description, &c.Order, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return c, err
	}
	if err != nil {
		return c, fmt.Errorf("failed to scan condition: %w", err)
	}

	c.UnitValue, err = decimal.NewFromString(unitValue)
	if err != nil {
		return c, fmt.Errorf("condition %s: bad unit value %q: %w", c.ID, unitValue, err)
	}
	c.Correction.Enabled = correctionEnabled != 0
	if assetJSON.Valid && assetJSON.String != "" {
		var a condition.Asset
		if err := json.Unmarshal([]byte(assetJSON.String), &a); err != nil {
			return c, fmt.Errorf("condition %s: bad asset: %w", c.ID, err)
		}
		c.Asset = &a
	}
	if firstDueDate.Valid {
		d, err := time.Parse(dateLayout, firstDueDate.String)
		if err != nil {
			return c, fmt.Errorf("condition %s: bad due date: %w", c.ID, err)
		}
		c.Due.FirstDueDate = &d
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	return c, nil
}

// conditionArgs returns the column values in conditionColumns order.
func conditionArgs(c condition.Condition) ([]any, error) {
	var asset sql.NullString
	if c.Asset != nil {
		b, err := json.Marshal(c.Asset)
		if err != nil {
			return nil, fmt.Errorf("failed to encode asset: %w", err)
		}
		asset = sql.NullString{String: string(b), Valid: true}
	}
	var due sql.NullString
	if c.Due.FirstDueDate != nil {
		due = sql.NullString{String: c.Due.FirstDueDate.Format(dateLayout), Valid: true}
	}

	return []any{
		c.ID,
		c.ParentID,
		c.InstallmentType,
		c.Count,
		c.UnitValue.String(),
		c.Kind(),
		c.Settlement,
		c.PaymentMethod,
		asset,
		boolInt(c.Correction.Enabled),
		c.Correction.Index,
		c.Correction.GracePeriodInstallments,
		due,
		c.Due.Event,
		c.Due.IntervalDays,
		c.Description,
		c.Order,
		c.CreatedAt.Format(time.RFC3339Nano),
	}, nil
}

// =============================================================================
// PARENT STORE (condition.ParentStore interface)
// =============================================================================

// CreateParent inserts a new parent. An empty ID gets a new UUID; an ID
// already in use returns ErrDuplicateParent and leaves the stored parent
// untouched.
func (s *Store) CreateParent(ctx context.Context, p condition.Parent) (condition.Parent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if p.ID == "" {
		p.ID = condition.ParentID(uuid.NewString())
	}
	if p.Stage == "" {
		p.Stage = condition.StageDraft
	}

	query := `
		INSERT INTO parents (id, kind, name, reference_total, stage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Kind, p.Name, int64(p.ReferenceTotal), p.Stage,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if isUniqueConstraintError(err) {
		return condition.Parent{}, fmt.Errorf("parent %s: %w", p.ID, condition.ErrDuplicateParent)
	}
	if err != nil {
		return condition.Parent{}, fmt.Errorf("failed to create parent: %w", err)
	}

	return s.getParentLocked(ctx, p.ID)
}

// GetParent retrieves a parent by ID.
func (s *Store) GetParent(ctx context.Context, id condition.ParentID) (condition.Parent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getParentLocked(ctx, id)
}

func (s *Store) getParentLocked(ctx context.Context, id condition.ParentID) (condition.Parent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, reference_total, stage, created_at, updated_at
		FROM parents WHERE id = ?`, id)

	p, err := scanParent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return condition.Parent{}, condition.ErrParentNotFound
	}
	return p, err
}

// ListParents returns all parents sorted by name.
func (s *Store) ListParents(ctx context.Context) ([]condition.Parent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name, reference_total, stage, created_at, updated_at
		FROM parents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query parents: %w", err)
	}
	defer rows.Close()

	result := []condition.Parent{}
	for rows.Next() {
		p, err := scanParent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// SetReferenceTotal changes what the parent's plan must add up to.
func (s *Store) SetReferenceTotal(ctx context.Context, id condition.ParentID, total money.Cents) error {
	return s.updateParent(ctx, id, "reference_total", int64(total))
}

// SetStage moves the parent to stage.
func (s *Store) SetStage(ctx context.Context, id condition.ParentID, stage condition.Stage) error {
	return s.updateParent(ctx, id, "stage", stage)
}

func (s *Store) updateParent(ctx context.Context, id condition.ParentID, column string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE parents SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, s.now().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to update parent %s: %w", column, err)
	}
	return requireAffected(res, condition.ErrParentNotFound)
}

func scanParent(row rowScanner) (condition.Parent, error) {
	var (
		p                    condition.Parent
		total                int64
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.Kind, &p.Name, &total, &p.Stage, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan parent: %w", err)
	}
	p.ReferenceTotal = money.Cents(total)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return p, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset clears all data (for testing/demo purposes).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"conditions", "parents"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
