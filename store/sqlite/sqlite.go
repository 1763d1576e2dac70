/*
Package sqlite provides the SQLite-backed implementation of every storage
interface in the engine.

PURPOSE:
  Implements all persistence interfaces using SQLite. In production, the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  ledger.AccountStore:      accounts table
  ledger.EntryStore:        ledger_entries table (append-only)
  award.EventStore:         award_events table
  catalog.RewardStore:      rewards table
  redemption.RequestStore:  redemption_requests table

OPTIMISTIC CONCURRENCY:
  Compare-and-swap is a single conditional UPDATE:

    UPDATE accounts SET ..., version = ? WHERE user_id = ? AND version = ?

  Zero rows affected means another writer won the race; the store reports
  points.ErrConcurrentModification and the service layer retries from a
  fresh read. No statement ever touches more than one contended entity.

IDEMPOTENT AWARDS:
  The UNIQUE(user_id, event_type, event_ref) index on award_events is the
  database-side enforcement of the one-award-per-event rule. Constraint
  violations are translated to award.ErrDuplicateEvent.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - store/memory: in-memory equivalents used by the service tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/surveypoints/points-engine/award"
	"github.com/surveypoints/points-engine/catalog"
	"github.com/surveypoints/points-engine/ledger"
	"github.com/surveypoints/points-engine/points"
	"github.com/surveypoints/points-engine/redemption"
)

// Store owns the database connection and exposes one sub-store per entity.
// The sub-stores share the connection; each satisfies its service's
// storage interface.
type Store struct {
	db *sql.DB

	Accounts *AccountStore
	Entries  *EntryStore
	Events   *EventStore
	Rewards  *RewardStore
	Requests *RequestStore
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and avoids
	// SQLITE_BUSY between concurrent writers; SQLite serializes writes
	// internally anyway.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:       db,
		Accounts: &AccountStore{db: db},
		Entries:  &EntryStore{db: db},
		Events:   &EventStore{db: db},
		Rewards:  &RewardStore{db: db},
		Requests: &RequestStore{db: db},
	}
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

func (s *Store) migrate() error {
	schema := `
	-- Accounts: one row per user, the only holder of balance state
	CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT PRIMARY KEY,
		points_total INTEGER NOT NULL DEFAULT 0,
		points_available INTEGER NOT NULL DEFAULT 0 CHECK (points_available >= 0),
		points_redeemed INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Ledger entries: append-only audit trail of balance changes
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT,
		balance INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_user
		ON ledger_entries(user_id, created_at);

	-- Award events: the record of why points were credited.
	-- CRITICAL: the unique index makes awarding idempotent.
	CREATE TABLE IF NOT EXISTS award_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_ref TEXT NOT NULL,
		points INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_award_events_unique
		ON award_events(user_id, event_type, event_ref);
	CREATE INDEX IF NOT EXISTS idx_award_events_user
		ON award_events(user_id, created_at);

	-- Rewards catalog (stock NULL means unlimited)
	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		image_url TEXT,
		category TEXT,
		kind TEXT NOT NULL,
		cost_points INTEGER NOT NULL CHECK (cost_points > 0),
		stock INTEGER CHECK (stock IS NULL OR stock >= 0),
		status TEXT NOT NULL DEFAULT 'available',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		instructions TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rewards_status
		ON rewards(status, active);

	-- Redemption requests
	CREATE TABLE IF NOT EXISTS redemption_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		reward_id TEXT NOT NULL,
		reward_name TEXT NOT NULL,
		points_spent INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'solicitado',
		requested_at TEXT NOT NULL,
		decided_at TEXT,
		delivered_at TEXT,
		address TEXT,
		phone TEXT,
		user_notes TEXT,
		requires_pickup BOOLEAN NOT NULL DEFAULT FALSE,
		admin_notes TEXT,
		tracking_code TEXT,
		approver_id TEXT,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_requests_user
		ON redemption_requests(user_id, requested_at DESC);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON redemption_requests(status, requested_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNT STORE (ledger.AccountStore)
// =============================================================================

type AccountStore struct {
	db *sql.DB
}

func (s *AccountStore) Get(ctx context.Context, userID points.UserID) (ledger.Account, error) {
	var (
		acct             ledger.Account
		created, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, points_total, points_available, points_redeemed, version, created_at, updated_at
		 FROM accounts WHERE user_id = ?`, string(userID),
	).Scan(&acct.UserID, &acct.PointsTotal, &acct.PointsAvailable, &acct.PointsRedeemed,
		&acct.Version, &created, &updated)

	if err == sql.ErrNoRows {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to load account: %w", err)
	}

	acct.CreatedAt = parseTime(created)
	acct.UpdatedAt = parseTime(updated)
	return acct, nil
}

func (s *AccountStore) Create(ctx context.Context, acct ledger.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, points_total, points_available, points_redeemed, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(acct.UserID), acct.PointsTotal, acct.PointsAvailable, acct.PointsRedeemed,
		acct.Version, formatTime(acct.CreatedAt), formatTime(acct.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *AccountStore) CompareAndSwap(ctx context.Context, acct ledger.Account) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts
		 SET points_total = ?, points_available = ?, points_redeemed = ?, version = ?, updated_at = ?
		 WHERE user_id = ? AND version = ?`,
		acct.PointsTotal, acct.PointsAvailable, acct.PointsRedeemed, acct.Version,
		formatTime(acct.UpdatedAt),
		string(acct.UserID), acct.Version-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return casOutcome(res, func() error {
		_, err := s.Get(ctx, acct.UserID)
		return err
	})
}

// =============================================================================
// ENTRY STORE (ledger.EntryStore)
// =============================================================================

type EntryStore struct {
	db *sql.DB
}

func (s *EntryStore) Append(ctx context.Context, e ledger.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, user_id, kind, delta, reason, balance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.UserID), string(e.Kind), e.Delta, e.Reason, e.Balance,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (s *EntryStore) ListByUser(ctx context.Context, userID points.UserID) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, delta, reason, balance, created_at
		 FROM ledger_entries WHERE user_id = ? ORDER BY created_at ASC, id ASC`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var (
			e       ledger.Entry
			reason  sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.Delta, &reason, &e.Balance, &created); err != nil {
			return nil, err
		}
		e.Reason = reason.String
		e.CreatedAt = parseTime(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// AWARD EVENT STORE (award.EventStore)
// =============================================================================

type EventStore struct {
	db *sql.DB
}

func (s *EventStore) Insert(ctx context.Context, e award.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO award_events (id, user_id, event_type, event_ref, points, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.UserID), string(e.Type), e.Ref, e.Points, formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return award.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to insert award event: %w", err)
	}
	return nil
}

func (s *EventStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM award_events WHERE id = ?`, id)
	return err
}

func (s *EventStore) ListByUser(ctx context.Context, userID points.UserID) ([]award.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, event_type, event_ref, points, created_at
		 FROM award_events WHERE user_id = ? ORDER BY created_at ASC, id ASC`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to query award events: %w", err)
	}
	defer rows.Close()

	var events []award.Event
	for rows.Next() {
		var (
			e       award.Event
			created string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Ref, &e.Points, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// REWARD STORE (catalog.RewardStore)
// =============================================================================

type RewardStore struct {
	db *sql.DB
}

const rewardColumns = `id, name, description, image_url, category, kind, cost_points,
	stock, status, active, instructions, version, created_at, updated_at`

func (s *RewardStore) Get(ctx context.Context, id points.RewardID) (catalog.Reward, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+rewardColumns+` FROM rewards WHERE id = ?`, string(id))
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return catalog.Reward{}, catalog.ErrRewardNotFound
	}
	if err != nil {
		return catalog.Reward{}, fmt.Errorf("failed to load reward: %w", err)
	}
	return r, nil
}

func (s *RewardStore) List(ctx context.Context) ([]catalog.Reward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rewardColumns+` FROM rewards ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rows.Close()

	var rewards []catalog.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Create(ctx context.Context, r catalog.Reward) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rewards (id, name, description, image_url, category, kind, cost_points,
			stock, status, active, instructions, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.ID), r.Name, r.Description, r.ImageURL, r.Category, string(r.Kind),
		r.CostPoints, nullInt(r.Stock), string(r.Status), r.Active, r.Instructions,
		r.Version, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return catalog.ErrRewardExists
		}
		return fmt.Errorf("failed to create reward: %w", err)
	}
	return nil
}

func (s *RewardStore) CompareAndSwap(ctx context.Context, r catalog.Reward) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rewards
		 SET name = ?, description = ?, image_url = ?, category = ?, kind = ?,
		     cost_points = ?, stock = ?, status = ?, active = ?, instructions = ?,
		     version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		r.Name, r.Description, r.ImageURL, r.Category, string(r.Kind),
		r.CostPoints, nullInt(r.Stock), string(r.Status), r.Active, r.Instructions,
		r.Version, formatTime(r.UpdatedAt),
		string(r.ID), r.Version-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update reward: %w", err)
	}
	return casOutcome(res, func() error {
		_, err := s.Get(ctx, r.ID)
		return err
	})
}

func scanReward(row rowScanner) (catalog.Reward, error) {
	var (
		r                      catalog.Reward
		description, imageURL  sql.NullString
		category, instructions sql.NullString
		stock                  sql.NullInt64
		created, updated       string
	)
	err := row.Scan(&r.ID, &r.Name, &description, &imageURL, &category, &r.Kind,
		&r.CostPoints, &stock, &r.Status, &r.Active, &instructions,
		&r.Version, &created, &updated)
	if err != nil {
		return catalog.Reward{}, err
	}
	r.Description = description.String
	r.ImageURL = imageURL.String
	r.Category = category.String
	r.Instructions = instructions.String
	if stock.Valid {
		v := stock.Int64
		r.Stock = &v
	}
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return r, nil
}

// =============================================================================
// REQUEST STORE (redemption.RequestStore)
// =============================================================================

type RequestStore struct {
	db *sql.DB
}

const requestColumns = `id, user_id, reward_id, reward_name, points_spent, status,
	requested_at, decided_at, delivered_at, address, phone, user_notes,
	requires_pickup, admin_notes, tracking_code, approver_id, version`

func (s *RequestStore) Create(ctx context.Context, r redemption.Request) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO redemption_requests (id, user_id, reward_id, reward_name, points_spent,
			status, requested_at, decided_at, delivered_at, address, phone, user_notes,
			requires_pickup, admin_notes, tracking_code, approver_id, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.ID), string(r.UserID), string(r.RewardID), r.RewardName, r.PointsSpent,
		string(r.Status), formatTime(r.RequestedAt),
		nullTime(r.DecidedAt), nullTime(r.DeliveredAt),
		r.Delivery.Address, r.Delivery.Phone, r.Delivery.UserNotes, r.Delivery.RequiresPickup,
		r.AdminNotes, r.TrackingCode, r.ApproverID, r.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create redemption request: %w", err)
	}
	return nil
}

func (s *RequestStore) Get(ctx context.Context, id points.RequestID) (redemption.Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM redemption_requests WHERE id = ?`, string(id))
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return redemption.Request{}, redemption.ErrRequestNotFound
	}
	if err != nil {
		return redemption.Request{}, fmt.Errorf("failed to load redemption request: %w", err)
	}
	return r, nil
}

func (s *RequestStore) CompareAndSwap(ctx context.Context, r redemption.Request) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE redemption_requests
		 SET status = ?, decided_at = ?, delivered_at = ?, admin_notes = ?,
		     tracking_code = ?, approver_id = ?, version = ?
		 WHERE id = ? AND version = ?`,
		string(r.Status), nullTime(r.DecidedAt), nullTime(r.DeliveredAt),
		r.AdminNotes, r.TrackingCode, r.ApproverID, r.Version,
		string(r.ID), r.Version-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update redemption request: %w", err)
	}
	return casOutcome(res, func() error {
		_, err := s.Get(ctx, r.ID)
		return err
	})
}

func (s *RequestStore) ListByUser(ctx context.Context, userID points.UserID) ([]redemption.Request, error) {
	return s.query(ctx,
		`SELECT `+requestColumns+` FROM redemption_requests
		 WHERE user_id = ? ORDER BY requested_at DESC, id DESC`, string(userID))
}

func (s *RequestStore) ListByStatus(ctx context.Context, status redemption.Status) ([]redemption.Request, error) {
	if status == "" {
		return s.query(ctx,
			`SELECT `+requestColumns+` FROM redemption_requests ORDER BY requested_at ASC, id ASC`)
	}
	return s.query(ctx,
		`SELECT `+requestColumns+` FROM redemption_requests
		 WHERE status = ? ORDER BY requested_at ASC, id ASC`, string(status))
}

func (s *RequestStore) query(ctx context.Context, query string, args ...any) ([]redemption.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemption requests: %w", err)
	}
	defer rows.Close()

	var requests []redemption.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func scanRequest(row rowScanner) (redemption.Request, error) {
	var (
		r                              redemption.Request
		requested                      string
		decided, delivered             sql.NullString
		address, phone, userNotes      sql.NullString
		adminNotes, tracking, approver sql.NullString
	)
	err := row.Scan(&r.ID, &r.UserID, &r.RewardID, &r.RewardName, &r.PointsSpent, &r.Status,
		&requested, &decided, &delivered, &address, &phone, &userNotes,
		&r.Delivery.RequiresPickup, &adminNotes, &tracking, &approver, &r.Version)
	if err != nil {
		return redemption.Request{}, err
	}
	r.RequestedAt = parseTime(requested)
	r.DecidedAt = parseNullTime(decided)
	r.DeliveredAt = parseNullTime(delivered)
	r.Delivery.Address = address.String
	r.Delivery.Phone = phone.String
	r.Delivery.UserNotes = userNotes.String
	r.AdminNotes = adminNotes.String
	r.TrackingCode = tracking.String
	r.ApproverID = approver.String
	return r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

// casOutcome distinguishes "lost the version race" from "row is gone" after
// a conditional UPDATE matched zero rows. exists is the sub-store's own Get;
// its not-found error is returned as-is.
func casOutcome(res sql.Result, exists func() error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if err := exists(); err != nil {
		return err
	}
	return points.ErrConcurrentModification
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
