/*
Package sqlite provides a SQLite-backed capacity.TxStore.

PURPOSE:
  Persists the governance config, the role catalog and commitments. The
  engine itself stays pure; this package is the collaborator that makes
  config publication atomic and admission writes serializable.

KEY TABLES:
  governance_config:  Single row (id = 1) holding quotas and the version
  governance_roles:   Team size and efficiency per role for that row
  roles:              Role catalog
  commitments:        Committed work with a per-row version

COMPARE-AND-SWAP:
  SaveConfig updates governance_config WHERE version = expected and
  rewrites governance_roles in the same transaction. Zero rows affected
  means another writer won: ErrConcurrentModification. UpdateCommitment
  does the same on commitments.version.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection. WithTx holds
  the write lock for its whole body, which is what serializes
  validate-then-write admission in capacity.Service.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/capacity.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := capacity.NewService(store, nil)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - capacity/store.go: Interface definitions
  - capacity/store/memory.go: In-memory implementation for testing
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

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/capacity-engine/capacity"
)

// Store implements capacity.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// has a single writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
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

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS governance_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		quota_client TEXT NOT NULL,
		quota_internal TEXT NOT NULL,
		role_order_json TEXT NOT NULL,
		team_updated_by TEXT,
		quota_updated_by TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS governance_roles (
		role TEXT PRIMARY KEY,
		team_size INTEGER NOT NULL,
		efficiency TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS roles (
		abbreviation TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		category TEXT,
		default_efficiency TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		display_order INTEGER NOT NULL DEFAULT 0,
		color TEXT
	);

	CREATE TABLE IF NOT EXISTS commitments (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		portfolio TEXT NOT NULL,
		delivery_mode TEXT NOT NULL,
		priority TEXT,
		role_fte_json TEXT NOT NULL,
		planned_start TEXT,
		planned_end TEXT,
		tentative_duration_weeks INTEGER NOT NULL DEFAULT 0,
		activities_json TEXT,
		pickup_period TEXT,
		picked_up INTEGER NOT NULL DEFAULT 0,
		locked INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Demand aggregation filters by portfolio and date range
	CREATE INDEX IF NOT EXISTS idx_commitments_portfolio_dates
		ON commitments(portfolio, planned_start, planned_end);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// COMMITMENTS
// =============================================================================

const commitmentColumns = `id, title, portfolio, delivery_mode, priority, role_fte_json,
	planned_start, planned_end, tentative_duration_weeks, activities_json, pickup_period,
	picked_up, locked, version, created_at, updated_at`

func (s *Store) ListCommitments(ctx context.Context) ([]capacity.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCommitments(ctx, s.db)
}

func listCommitments(ctx context.Context, q querier) ([]capacity.Commitment, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+commitmentColumns+` FROM commitments ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []capacity.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCommitment(ctx context.Context, id string) (*capacity.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCommitment(ctx, s.db, id)
}

func getCommitment(ctx context.Context, q querier, id string) (*capacity.Commitment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+commitmentColumns+` FROM commitments WHERE id = ?`, id)
	c, err := scanCommitment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("commitment %s: %w", id, capacity.ErrCommitmentNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) InsertCommitment(ctx context.Context, c capacity.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertCommitment(ctx, s.db, c)
}

func insertCommitment(ctx context.Context, q querier, c capacity.Commitment) error {
	fteJSON, activitiesJSON, err := encodeCommitment(c)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO commitments (`+commitmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Portfolio, c.DeliveryMode, c.Priority, fteJSON,
		nullDate(c.PlannedStart), nullDate(c.PlannedEnd), c.TentativeDurationWeeks,
		activitiesJSON, c.PickupPeriod, c.PickedUp, c.Locked, c.Version,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("commitment %s already exists: %w", c.ID, capacity.ErrConcurrentModification)
	}
	if err != nil {
		return fmt.Errorf("failed to insert commitment: %w", err)
	}
	return nil
}

func (s *Store) UpdateCommitment(ctx context.Context, c capacity.Commitment, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateCommitment(ctx, s.db, c, expectedVersion)
}

func updateCommitment(ctx context.Context, q querier, c capacity.Commitment, expectedVersion int) error {
	fteJSON, activitiesJSON, err := encodeCommitment(c)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE commitments SET
		title = ?, portfolio = ?, delivery_mode = ?, priority = ?, role_fte_json = ?,
		planned_start = ?, planned_end = ?, tentative_duration_weeks = ?, activities_json = ?,
		pickup_period = ?, picked_up = ?, locked = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		c.Title, c.Portfolio, c.DeliveryMode, c.Priority, fteJSON,
		nullDate(c.PlannedStart), nullDate(c.PlannedEnd), c.TentativeDurationWeeks, activitiesJSON,
		c.PickupPeriod, c.PickedUp, c.Locked, c.Version, formatTime(c.UpdatedAt),
		c.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update commitment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := getCommitment(ctx, q, c.ID); err != nil {
			return err
		}
		return fmt.Errorf("commitment %s: %w", c.ID, capacity.ErrConcurrentModification)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCommitment(row scanner) (capacity.Commitment, error) {
	var (
		c                          capacity.Commitment
		priority, pickup           sql.NullString
		start, end, activitiesJSON sql.NullString
		fteJSON, created, updated  string
	)
	err := row.Scan(&c.ID, &c.Title, &c.Portfolio, &c.DeliveryMode, &priority, &fteJSON,
		&start, &end, &c.TentativeDurationWeeks, &activitiesJSON, &pickup,
		&c.PickedUp, &c.Locked, &c.Version, &created, &updated)
	if err != nil {
		return c, err
	}
	c.Priority = priority.String
	c.PickupPeriod = pickup.String

	var fte map[capacity.Role]string
	if err := json.Unmarshal([]byte(fteJSON), &fte); err != nil {
		return c, fmt.Errorf("commitment %s: bad role_fte_json: %w", c.ID, err)
	}
	c.RoleFTE = make(capacity.RoleTotals, len(fte))
	for r, v := range fte {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return c, fmt.Errorf("commitment %s: bad FTE for %s: %w", c.ID, r, err)
		}
		c.RoleFTE[r] = d
	}
	if activitiesJSON.Valid && activitiesJSON.String != "" {
		if err := json.Unmarshal([]byte(activitiesJSON.String), &c.Activities); err != nil {
			return c, fmt.Errorf("commitment %s: bad activities_json: %w", c.ID, err)
		}
	}
	if c.PlannedStart, err = parseNullDate(start); err != nil {
		return c, err
	}
	if c.PlannedEnd, err = parseNullDate(end); err != nil {
		return c, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return c, nil
}

func encodeCommitment(c capacity.Commitment) (string, string, error) {
	fte := make(map[capacity.Role]string, len(c.RoleFTE))
	for r, v := range c.RoleFTE {
		fte[r] = v.String()
	}
	fteJSON, err := json.Marshal(fte)
	if err != nil {
		return "", "", err
	}
	activitiesJSON, err := json.Marshal(c.Activities)
	if err != nil {
		return "", "", err
	}
	return string(fteJSON), string(activitiesJSON), nil
}

// =============================================================================
// GOVERNANCE CONFIG
// =============================================================================

func (s *Store) LoadConfig(ctx context.Context) (*capacity.GovernanceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Header and roles must come from one snapshot.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return loadConfig(ctx, tx)
}

func loadConfig(ctx context.Context, q querier) (*capacity.GovernanceConfig, error) {
	var (
		cfg                      capacity.GovernanceConfig
		client, internal         string
		orderJSON, updated       string
		teamBy, quotaBy          sql.NullString
	)
	err := q.QueryRowContext(ctx, `SELECT version, quota_client, quota_internal, role_order_json,
		team_updated_by, quota_updated_by, updated_at FROM governance_config WHERE id = 1`).
		Scan(&cfg.Version, &client, &internal, &orderJSON, &teamBy, &quotaBy, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, capacity.ErrConfigMissing
	}
	if err != nil {
		return nil, err
	}
	cfg.TeamUpdatedBy = teamBy.String
	cfg.QuotaUpdatedBy = quotaBy.String
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	if err := json.Unmarshal([]byte(orderJSON), &cfg.Order); err != nil {
		return nil, fmt.Errorf("bad role_order_json: %w", err)
	}
	cfg.Quotas = map[capacity.Portfolio]decimal.Decimal{
		capacity.PortfolioClient:   decimal.RequireFromString(client),
		capacity.PortfolioInternal: decimal.RequireFromString(internal),
	}

	rows, err := q.QueryContext(ctx, `SELECT role, team_size, efficiency FROM governance_roles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cfg.Roles = make(map[capacity.Role]capacity.RoleCapacity)
	for rows.Next() {
		var (
			role string
			rc   capacity.RoleCapacity
			eff  string
		)
		if err := rows.Scan(&role, &rc.TeamSize, &eff); err != nil {
			return nil, err
		}
		if rc.Efficiency, err = decimal.NewFromString(eff); err != nil {
			return nil, fmt.Errorf("bad efficiency for %s: %w", role, err)
		}
		cfg.Roles[capacity.Role(role)] = rc
	}
	return &cfg, rows.Err()
}

func (s *Store) SaveConfig(ctx context.Context, cfg capacity.GovernanceConfig, expectedVersion int64) error {
	return s.WithTx(ctx, func(tx capacity.Store) error {
		return tx.SaveConfig(ctx, cfg, expectedVersion)
	})
}

func saveConfig(ctx context.Context, q querier, cfg capacity.GovernanceConfig, expectedVersion int64) error {
	orderJSON, err := json.Marshal(cfg.Order)
	if err != nil {
		return err
	}
	args := []any{
		cfg.Version, cfg.Quota(capacity.PortfolioClient).String(), cfg.Quota(capacity.PortfolioInternal).String(),
		string(orderJSON), cfg.TeamUpdatedBy, cfg.QuotaUpdatedBy, formatTime(cfg.UpdatedAt),
	}

	if expectedVersion == 0 {
		_, err = q.ExecContext(ctx, `INSERT INTO governance_config
			(id, version, quota_client, quota_internal, role_order_json, team_updated_by, quota_updated_by, updated_at)
			VALUES (1, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if isUniqueConstraintError(err) {
			return fmt.Errorf("governance config already exists: %w", capacity.ErrConcurrentModification)
		}
		if err != nil {
			return fmt.Errorf("failed to insert governance config: %w", err)
		}
	} else {
		res, err := q.ExecContext(ctx, `UPDATE governance_config SET
			version = ?, quota_client = ?, quota_internal = ?, role_order_json = ?,
			team_updated_by = ?, quota_updated_by = ?, updated_at = ?
			WHERE id = 1 AND version = ?`, append(args, expectedVersion)...)
		if err != nil {
			return fmt.Errorf("failed to update governance config: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("governance config version %d is stale: %w", expectedVersion, capacity.ErrConcurrentModification)
		}
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM governance_roles`); err != nil {
		return err
	}
	for r, rc := range cfg.Roles {
		if _, err := q.ExecContext(ctx, `INSERT INTO governance_roles (role, team_size, efficiency) VALUES (?, ?, ?)`,
			string(r), rc.TeamSize, rc.Efficiency.String()); err != nil {
			return fmt.Errorf("failed to save role %s: %w", r, err)
		}
	}
	return nil
}

// =============================================================================
// ROLE CATALOG
// =============================================================================

func (s *Store) ListRoles(ctx context.Context) (capacity.RoleCatalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRoles(ctx, s.db)
}

func listRoles(ctx context.Context, q querier) (capacity.RoleCatalog, error) {
	rows, err := q.QueryContext(ctx, `SELECT abbreviation, name, description, category,
		default_efficiency, active, display_order, color FROM roles ORDER BY display_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out capacity.RoleCatalog
	for rows.Next() {
		var (
			d                           capacity.RoleDefinition
			desc, category, color, eff sql.NullString
		)
		if err := rows.Scan(&d.Abbreviation, &d.Name, &desc, &category, &eff, &d.Active, &d.DisplayOrder, &color); err != nil {
			return nil, err
		}
		d.Description, d.Category, d.Color = desc.String, category.String, color.String
		if d.DefaultEfficiency, err = decimal.NewFromString(eff.String); err != nil {
			return nil, fmt.Errorf("bad default efficiency for %s: %w", d.Abbreviation, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) SaveRole(ctx context.Context, r capacity.RoleDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRole(ctx, s.db, r)
}

func saveRole(ctx context.Context, q querier, r capacity.RoleDefinition) error {
	_, err := q.ExecContext(ctx, `INSERT INTO roles
		(abbreviation, name, description, category, default_efficiency, active, display_order, color)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(abbreviation) DO UPDATE SET
			name = excluded.name, description = excluded.description, category = excluded.category,
			default_efficiency = excluded.default_efficiency, active = excluded.active,
			display_order = excluded.display_order, color = excluded.color`,
		string(r.Abbreviation), r.Name, r.Description, r.Category, r.DefaultEfficiency.String(),
		r.Active, r.DisplayOrder, r.Color)
	if err != nil {
		return fmt.Errorf("failed to save role %s: %w", r.Abbreviation, err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(capacity.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore implements capacity.Store within a transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) ListCommitments(ctx context.Context) ([]capacity.Commitment, error) {
	return listCommitments(ctx, ts.tx)
}

func (ts *txStore) GetCommitment(ctx context.Context, id string) (*capacity.Commitment, error) {
	return getCommitment(ctx, ts.tx, id)
}

func (ts *txStore) InsertCommitment(ctx context.Context, c capacity.Commitment) error {
	return insertCommitment(ctx, ts.tx, c)
}

func (ts *txStore) UpdateCommitment(ctx context.Context, c capacity.Commitment, expectedVersion int) error {
	return updateCommitment(ctx, ts.tx, c, expectedVersion)
}

func (ts *txStore) LoadConfig(ctx context.Context) (*capacity.GovernanceConfig, error) {
	return loadConfig(ctx, ts.tx)
}

func (ts *txStore) SaveConfig(ctx context.Context, cfg capacity.GovernanceConfig, expectedVersion int64) error {
	return saveConfig(ctx, ts.tx, cfg, expectedVersion)
}

func (ts *txStore) ListRoles(ctx context.Context) (capacity.RoleCatalog, error) {
	return listRoles(ctx, ts.tx)
}

func (ts *txStore) SaveRole(ctx context.Context, r capacity.RoleDefinition) error {
	return saveRole(ctx, ts.tx, r)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"commitments", "governance_roles", "governance_config", "roles"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(capacity.DateLayout), Valid: true}
}

func parseNullDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	return capacity.ParseDate(s.String)
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
