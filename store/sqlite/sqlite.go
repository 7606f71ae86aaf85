/*
Package sqlite provides the SQLite-backed movement store.

PURPOSE:
  Implements ledger.Store and ledger.TxStore using SQLite. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

UNIQUENESS AS FENCING:
  The engine's only cross-process mutual-exclusion mechanism is this
  store's unique indexes:
  - movements.id (primary key)
  - one derived sale per (item, date, org, branch, issuance)
  - one opening/closing record per (item, date, org, branch)
  Constraint failures surface as ledger.ErrUniquenessViolation so the
  availability controller can retry.

BRANCH SCOPING:
  branch_id is stored as TEXT NOT NULL DEFAULT '', with '' standing for
  the no-branch scope. SQL NULLs never compare equal, so a nullable
  column would let duplicate no-branch rows through the composite
  unique indexes.

QUANTITIES:
  Stored as decimal strings, never floats.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery
  WithTx runs inside a database transaction, which closes the
  check-then-insert window for the availability controller.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store, log)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tally/inventory-engine/ledger"
)

// Store implements ledger.TxStore over SQLite.
type Store struct {
	db *sql.DB
	*queries
}

// New opens (and migrates) a SQLite store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, queries: &queries{q: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ ledger.TxStore = (*Store)(nil)

// WithTx executes fn inside a database transaction. The availability
// controller routes its final re-check and insert through here, which
// closes the window the plain double-check sequence only narrows.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&queries{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) migrate() error {
	schema := `
	-- Items (tracked SKUs; deliberately no quantity column)
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		name TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		cost_price TEXT NOT NULL DEFAULT '0',
		selling_price TEXT NOT NULL DEFAULT '0',
		low_stock_threshold TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_items_org ON items(organization_id, name);

	-- Movements (restocking, sales, waste, transfers)
	CREATE TABLE IF NOT EXISTS movements (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		branch_id TEXT NOT NULL DEFAULT '',
		item_id TEXT NOT NULL,
		date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price_per_unit TEXT NOT NULL DEFAULT '0',
		total_price TEXT NOT NULL DEFAULT '0',
		payment_mode TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		restocking_id TEXT,
		opening_stock_id TEXT,
		issuance_id TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		from_branch_id TEXT,
		to_branch_id TEXT,
		description TEXT NOT NULL DEFAULT '',
		recorded_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Hot path: one day's movements of one kind for one item/scope
	CREATE INDEX IF NOT EXISTS idx_movements_scope_day
		ON movements(organization_id, branch_id, item_id, date, kind);
	-- Batch-linked sales
	CREATE INDEX IF NOT EXISTS idx_movements_restocking
		ON movements(restocking_id) WHERE restocking_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_movements_opening
		ON movements(opening_stock_id) WHERE opening_stock_id IS NOT NULL;
	-- Transfers by direction
	CREATE INDEX IF NOT EXISTS idx_movements_transfer_from
		ON movements(organization_id, item_id, date, from_branch_id)
		WHERE kind = 'branch_transfer';
	CREATE INDEX IF NOT EXISTS idx_movements_transfer_to
		ON movements(organization_id, item_id, date, to_branch_id)
		WHERE kind = 'branch_transfer';

	-- CRITICAL: settlement idempotency. One derived sale per issuance per
	-- day per scope; rerunning settlement upserts into this key.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_movements_derived_sale
		ON movements(item_id, date, organization_id, branch_id, issuance_id)
		WHERE source = 'issuance';

	-- Day boundaries: at most one record per (item, date, scope)
	CREATE TABLE IF NOT EXISTS opening_stock (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		branch_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		source TEXT NOT NULL,
		recorded_by TEXT NOT NULL DEFAULT '',
		UNIQUE(item_id, date, organization_id, branch_id)
	);

	CREATE TABLE IF NOT EXISTS closing_stock (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		branch_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		source TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		recorded_by TEXT NOT NULL DEFAULT '',
		UNIQUE(item_id, date, organization_id, branch_id)
	);

	-- Issuances and returns
	CREATE TABLE IF NOT EXISTS issuances (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		branch_id TEXT NOT NULL DEFAULT '',
		item_id TEXT NOT NULL,
		staff_id TEXT NOT NULL,
		date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		confirmed_at TEXT,
		recorded_by TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_issuances_scope_day
		ON issuances(organization_id, branch_id, date);

	CREATE TABLE IF NOT EXISTS returns (
		id TEXT PRIMARY KEY,
		issuance_id TEXT NOT NULL,
		date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		recorded_by TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (issuance_id) REFERENCES issuances(id)
	);
	CREATE INDEX IF NOT EXISTS idx_returns_issuance ON returns(issuance_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERIES - every method works against a *sql.DB or a *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

var _ ledger.Store = (*queries)(nil)

// isUniqueViolation maps SQLite constraint errors onto the engine's
// fencing sentinel.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

func wrapUnique(err error) error {
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ledger.ErrUniquenessViolation, err)
	}
	return err
}

func branchToDB(b *ledger.BranchID) string {
	if b == nil {
		return ""
	}
	return string(*b)
}

func branchFromDB(s string) *ledger.BranchID {
	if s == "" {
		return nil
	}
	b := ledger.BranchID(s)
	return &b
}

func mustDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// MOVEMENTS
// =============================================================================

const movementColumns = `id, kind, organization_id, branch_id, item_id, date, quantity,
	price_per_unit, total_price, payment_mode, source, restocking_id,
	opening_stock_id, issuance_id, reason, from_branch_id, to_branch_id,
	description, recorded_by, created_at`

func (s *queries) InsertMovement(ctx context.Context, m ledger.Movement) error {
	query := `
		INSERT INTO movements (` + movementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query, movementArgs(m)...)
	return wrapUnique(err)
}

func (s *queries) UpsertDerivedSale(ctx context.Context, m ledger.Movement) error {
	if m.IssuanceID == nil {
		return fmt.Errorf("derived sale missing issuance link")
	}
	query := `
		INSERT INTO movements (` + movementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, date, organization_id, branch_id, issuance_id)
			WHERE source = 'issuance'
		DO UPDATE SET
			quantity = excluded.quantity,
			price_per_unit = excluded.price_per_unit,
			total_price = excluded.total_price,
			description = excluded.description,
			recorded_by = excluded.recorded_by
	`
	_, err := s.q.ExecContext(ctx, query, movementArgs(m)...)
	return err
}

func movementArgs(m ledger.Movement) []any {
	var restockingID, openingID, fromBranch, toBranch sql.NullString
	if m.RestockingID != nil {
		restockingID = sql.NullString{String: string(*m.RestockingID), Valid: true}
	}
	if m.OpeningStockID != nil {
		openingID = sql.NullString{String: *m.OpeningStockID, Valid: true}
	}
	if m.FromBranch != nil {
		fromBranch = sql.NullString{String: string(*m.FromBranch), Valid: true}
	}
	if m.ToBranch != nil {
		toBranch = sql.NullString{String: string(*m.ToBranch), Valid: true}
	}
	issuanceID := ""
	if m.IssuanceID != nil {
		issuanceID = string(*m.IssuanceID)
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return []any{
		string(m.ID), string(m.Kind), string(m.Org), branchToDB(m.Branch),
		string(m.ItemID), m.Date.String(), m.Quantity.String(),
		m.PricePerUnit.String(), m.TotalPrice.String(), m.PaymentMode,
		string(m.Source), restockingID, openingID, issuanceID, m.Reason,
		fromBranch, toBranch, m.Description, m.RecordedBy,
		createdAt.Format(time.RFC3339),
	}
}

func scanMovement(scanner interface{ Scan(...any) error }) (ledger.Movement, error) {
	var (
		m                                  ledger.Movement
		id, kind, org, branch, item        string
		date, quantity, price, total       string
		payment, source, issuance, reason  string
		restockingID, openingID            sql.NullString
		fromBranch, toBranch               sql.NullString
		description, recordedBy, createdAt string
	)
	err := scanner.Scan(&id, &kind, &org, &branch, &item, &date, &quantity,
		&price, &total, &payment, &source, &restockingID, &openingID,
		&issuance, &reason, &fromBranch, &toBranch, &description,
		&recordedBy, &createdAt)
	if err != nil {
		return m, err
	}

	m.ID = ledger.MovementID(id)
	m.Kind = ledger.MovementKind(kind)
	m.Org = ledger.OrgID(org)
	m.Branch = branchFromDB(branch)
	m.ItemID = ledger.ItemID(item)
	if m.Date, err = ledger.ParseDate(date); err != nil {
		return m, err
	}
	m.Quantity = mustDecimal(quantity)
	m.PricePerUnit = mustDecimal(price)
	m.TotalPrice = mustDecimal(total)
	m.PaymentMode = payment
	m.Source = ledger.SaleSource(source)
	if restockingID.Valid {
		rid := ledger.MovementID(restockingID.String)
		m.RestockingID = &rid
	}
	if openingID.Valid {
		oid := openingID.String
		m.OpeningStockID = &oid
	}
	if issuance != "" {
		iid := ledger.IssuanceID(issuance)
		m.IssuanceID = &iid
	}
	m.Reason = reason
	if fromBranch.Valid {
		m.FromBranch = branchFromDB(fromBranch.String)
	}
	if toBranch.Valid {
		m.ToBranch = branchFromDB(toBranch.String)
	}
	m.Description = description
	m.RecordedBy = recordedBy
	if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		m.CreatedAt = t
	}
	return m, nil
}

func (s *queries) GetMovement(ctx context.Context, id ledger.MovementID) (*ledger.Movement, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE id = ?`, string(id))
	m, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *queries) DeleteMovement(ctx context.Context, id ledger.MovementID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM movements WHERE id = ?`, string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrMovementNotFound
	}
	return nil
}

func (s *queries) queryMovements(ctx context.Context, query string, args ...any) ([]ledger.Movement, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *queries) MovementsOn(ctx context.Context, scope ledger.Scope, itemID ledger.ItemID, date ledger.Date, kind ledger.MovementKind) ([]ledger.Movement, error) {
	return s.queryMovements(ctx, `
		SELECT `+movementColumns+` FROM movements
		WHERE organization_id = ? AND branch_id = ? AND item_id = ? AND date = ? AND kind = ?
		ORDER BY created_at, id`,
		string(scope.Org), scope.BranchKey(), string(itemID), date.String(), string(kind))
}

func (s *queries) SalesForBatch(ctx context.Context, scope ledger.Scope, date ledger.Date, batch ledger.BatchRef) ([]ledger.Movement, error) {
	switch {
	case batch.RestockingID != nil:
		return s.queryMovements(ctx, `
			SELECT `+movementColumns+` FROM movements
			WHERE kind = 'sale' AND organization_id = ? AND branch_id = ? AND date = ? AND restocking_id = ?
			ORDER BY created_at, id`,
			string(scope.Org), scope.BranchKey(), date.String(), string(*batch.RestockingID))
	case batch.OpeningStockID != nil:
		return s.queryMovements(ctx, `
			SELECT `+movementColumns+` FROM movements
			WHERE kind = 'sale' AND organization_id = ? AND branch_id = ? AND date = ? AND opening_stock_id = ?
			ORDER BY created_at, id`,
			string(scope.Org), scope.BranchKey(), date.String(), *batch.OpeningStockID)
	default:
		return nil, nil
	}
}

func (s *queries) IncomingTransfers(ctx context.Context, org ledger.OrgID, branch ledger.BranchID, itemID ledger.ItemID, date ledger.Date) ([]ledger.Movement, error) {
	return s.queryMovements(ctx, `
		SELECT `+movementColumns+` FROM movements
		WHERE kind = 'branch_transfer' AND organization_id = ? AND item_id = ? AND date = ? AND to_branch_id = ?
		ORDER BY created_at, id`,
		string(org), string(itemID), date.String(), string(branch))
}

func (s *queries) OutgoingTransfers(ctx context.Context, org ledger.OrgID, branch ledger.BranchID, itemID ledger.ItemID, date ledger.Date) ([]ledger.Movement, error) {
	return s.queryMovements(ctx, `
		SELECT `+movementColumns+` FROM movements
		WHERE kind = 'branch_transfer' AND organization_id = ? AND item_id = ? AND date = ? AND from_branch_id = ?
		ORDER BY created_at, id`,
		string(org), string(itemID), date.String(), string(branch))
}

// =============================================================================
// DAY BOUNDARIES
// =============================================================================

func (s *queries) GetOpeningStock(ctx context.Context, scope ledger.Scope, itemID ledger.ItemID, date ledger.Date) (*ledger.OpeningStock, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, item_id, organization_id, branch_id, date, quantity, source, recorded_by
		FROM opening_stock
		WHERE item_id = ? AND date = ? AND organization_id = ? AND branch_id = ?`,
		string(itemID), date.String(), string(scope.Org), scope.BranchKey())
	return scanOpening(row)
}

func (s *queries) GetOpeningStockByID(ctx context.Context, id string) (*ledger.OpeningStock, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, item_id, organization_id, branch_id, date, quantity, source, recorded_by
		FROM opening_stock WHERE id = ?`, id)
	return scanOpening(row)
}

func scanOpening(row *sql.Row) (*ledger.OpeningStock, error) {
	var o ledger.OpeningStock
	var id, item, org, branch, date, quantity, source, recordedBy string
	err := row.Scan(&id, &item, &org, &branch, &date, &quantity, &source, &recordedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.ID = id
	o.ItemID = ledger.ItemID(item)
	o.Org = ledger.OrgID(org)
	o.Branch = branchFromDB(branch)
	if o.Date, err = ledger.ParseDate(date); err != nil {
		return nil, err
	}
	o.Quantity = mustDecimal(quantity)
	o.Source = ledger.StockSource(source)
	o.RecordedBy = recordedBy
	return &o, nil
}

func (s *queries) UpsertOpeningStock(ctx context.Context, o ledger.OpeningStock) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO opening_stock (id, item_id, organization_id, branch_id, date, quantity, source, recorded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, date, organization_id, branch_id)
		DO UPDATE SET quantity = excluded.quantity, source = excluded.source, recorded_by = excluded.recorded_by`,
		o.ID, string(o.ItemID), string(o.Org), branchToDB(o.Branch),
		o.Date.String(), o.Quantity.String(), string(o.Source), o.RecordedBy)
	return err
}

func (s *queries) GetClosingStock(ctx context.Context, scope ledger.Scope, itemID ledger.ItemID, date ledger.Date) (*ledger.ClosingStock, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, item_id, organization_id, branch_id, date, quantity, source, notes, recorded_by
		FROM closing_stock
		WHERE item_id = ? AND date = ? AND organization_id = ? AND branch_id = ?`,
		string(itemID), date.String(), string(scope.Org), scope.BranchKey())

	var c ledger.ClosingStock
	var id, item, org, branch, dateStr, quantity, source, notes, recordedBy string
	err := row.Scan(&id, &item, &org, &branch, &dateStr, &quantity, &source, &notes, &recordedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.ID = id
	c.ItemID = ledger.ItemID(item)
	c.Org = ledger.OrgID(org)
	c.Branch = branchFromDB(branch)
	if c.Date, err = ledger.ParseDate(dateStr); err != nil {
		return nil, err
	}
	c.Quantity = mustDecimal(quantity)
	c.Source = ledger.StockSource(source)
	c.Notes = notes
	c.RecordedBy = recordedBy
	return &c, nil
}

func (s *queries) UpsertClosingStock(ctx context.Context, c ledger.ClosingStock) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO closing_stock (id, item_id, organization_id, branch_id, date, quantity, source, notes, recorded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, date, organization_id, branch_id)
		DO UPDATE SET quantity = excluded.quantity, source = excluded.source,
			notes = excluded.notes, recorded_by = excluded.recorded_by`,
		c.ID, string(c.ItemID), string(c.Org), branchToDB(c.Branch),
		c.Date.String(), c.Quantity.String(), string(c.Source), c.Notes, c.RecordedBy)
	return err
}

// =============================================================================
// ISSUANCES / RETURNS
// =============================================================================

func (s *queries) InsertIssuance(ctx context.Context, i ledger.Issuance) error {
	var confirmedAt sql.NullString
	if i.ConfirmedAt != nil {
		confirmedAt = sql.NullString{String: i.ConfirmedAt.UTC().Format(time.RFC3339), Valid: true}
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO issuances (id, organization_id, branch_id, item_id, staff_id, date, quantity, confirmed_at, recorded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(i.ID), string(i.Org), branchToDB(i.Branch), string(i.ItemID),
		string(i.StaffID), i.Date.String(), i.Quantity.String(), confirmedAt, i.RecordedBy)
	return wrapUnique(err)
}

func (s *queries) GetIssuance(ctx context.Context, id ledger.IssuanceID) (*ledger.Issuance, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, organization_id, branch_id, item_id, staff_id, date, quantity, confirmed_at, recorded_by
		FROM issuances WHERE id = ?`, string(id))
	i, err := scanIssuance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (s *queries) IssuancesOn(ctx context.Context, scope ledger.Scope, date ledger.Date) ([]ledger.Issuance, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, organization_id, branch_id, item_id, staff_id, date, quantity, confirmed_at, recorded_by
		FROM issuances
		WHERE organization_id = ? AND branch_id = ? AND date = ?
		ORDER BY id`,
		string(scope.Org), scope.BranchKey(), date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Issuance
	for rows.Next() {
		i, err := scanIssuance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func scanIssuance(scanner interface{ Scan(...any) error }) (ledger.Issuance, error) {
	var i ledger.Issuance
	var id, org, branch, item, staff, date, quantity, recordedBy string
	var confirmedAt sql.NullString
	err := scanner.Scan(&id, &org, &branch, &item, &staff, &date, &quantity, &confirmedAt, &recordedBy)
	if err != nil {
		return i, err
	}
	i.ID = ledger.IssuanceID(id)
	i.Org = ledger.OrgID(org)
	i.Branch = branchFromDB(branch)
	i.ItemID = ledger.ItemID(item)
	i.StaffID = ledger.StaffID(staff)
	if i.Date, err = ledger.ParseDate(date); err != nil {
		return i, err
	}
	i.Quantity = mustDecimal(quantity)
	if confirmedAt.Valid {
		if t, perr := time.Parse(time.RFC3339, confirmedAt.String); perr == nil {
			i.ConfirmedAt = &t
		}
	}
	i.RecordedBy = recordedBy
	return i, nil
}

func (s *queries) InsertReturn(ctx context.Context, r ledger.Return) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO returns (id, issuance_id, date, quantity, reason, recorded_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.IssuanceID), r.Date.String(), r.Quantity.String(), r.Reason, r.RecordedBy)
	return wrapUnique(err)
}

func (s *queries) ReturnsFor(ctx context.Context, issuanceID ledger.IssuanceID) ([]ledger.Return, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, issuance_id, date, quantity, reason, recorded_by
		FROM returns WHERE issuance_id = ? ORDER BY date, id`, string(issuanceID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Return
	for rows.Next() {
		var r ledger.Return
		var id, iss, date, quantity, reason, recordedBy string
		if err := rows.Scan(&id, &iss, &date, &quantity, &reason, &recordedBy); err != nil {
			return nil, err
		}
		r.ID = id
		r.IssuanceID = ledger.IssuanceID(iss)
		if r.Date, err = ledger.ParseDate(date); err != nil {
			return nil, err
		}
		r.Quantity = mustDecimal(quantity)
		r.Reason = reason
		r.RecordedBy = recordedBy
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// ITEMS
// =============================================================================

func (s *queries) SaveItem(ctx context.Context, item ledger.Item) error {
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO items (id, organization_id, name, unit, cost_price, selling_price, low_stock_threshold, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, unit = excluded.unit,
			cost_price = excluded.cost_price, selling_price = excluded.selling_price,
			low_stock_threshold = excluded.low_stock_threshold`,
		string(item.ID), string(item.Org), item.Name, item.Unit,
		item.CostPrice.String(), item.SellingPrice.String(),
		item.LowStockThreshold.String(), createdAt.Format(time.RFC3339))
	return err
}

func (s *queries) GetItem(ctx context.Context, id ledger.ItemID) (*ledger.Item, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, organization_id, name, unit, cost_price, selling_price, low_stock_threshold, created_at
		FROM items WHERE id = ?`, string(id))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *queries) ListItems(ctx context.Context, org ledger.OrgID) ([]ledger.Item, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, organization_id, name, unit, cost_price, selling_price, low_stock_threshold, created_at
		FROM items WHERE organization_id = ? ORDER BY name`, string(org))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanItem(scanner interface{ Scan(...any) error }) (ledger.Item, error) {
	var item ledger.Item
	var id, org, name, unit, cost, selling, threshold, createdAt string
	err := scanner.Scan(&id, &org, &name, &unit, &cost, &selling, &threshold, &createdAt)
	if err != nil {
		return item, err
	}
	item.ID = ledger.ItemID(id)
	item.Org = ledger.OrgID(org)
	item.Name = name
	item.Unit = unit
	item.CostPrice = mustDecimal(cost)
	item.SellingPrice = mustDecimal(selling)
	item.LowStockThreshold = mustDecimal(threshold)
	if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		item.CreatedAt = t
	}
	return item, nil
}
