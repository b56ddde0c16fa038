/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.Store (both bucket shapes), party.Store, expense.Store
  and ledger.PartyResolver on one SQLite database. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  day_buckets:    one row per (party, week number, week year), day map as JSON
  range_buckets:  same key, range list as JSON
  parties:        party directory
  expenses:       dated expense records

UPSERT CONCURRENCY:
  Each bucket row carries a version column. UpsertDay/UpsertRange run an
  optimistic read-mutate-write loop: the UPDATE is conditioned on the
  version read, and a lost race (zero rows affected, or a UNIQUE clash on
  insert) retries with fresh state, bounded at maxUpsertRetries before
  surfacing ledger.ErrConflict. This serializes writers per WeekKey
  without any cross-key locking.

DATE COLUMNS:
  week_start/week_end and entry dates are stored as YYYY-MM-DD text in
  UTC; lexicographic comparison in SQL is then identical to date
  comparison, which is what the overlap queries rely on.

WAL MODE:
  The database is opened with WAL for better read concurrency and crash
  recovery.

SEE ALSO:
  - ledger/store.go: interface contracts
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/expense"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/party"
	"github.com/warp/ledger-engine/weekclock"
)

// maxUpsertRetries bounds the optimistic-concurrency loop per upsert call.
const maxUpsertRetries = 5

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY churn between our own goroutines.
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Day-shaped weekly buckets (one per party per ISO week)
	CREATE TABLE IF NOT EXISTS day_buckets (
		party_id         TEXT NOT NULL,
		week_number      INTEGER NOT NULL,
		week_year        INTEGER NOT NULL,
		week_start       TEXT NOT NULL,
		week_end         TEXT NOT NULL,
		days_json        TEXT NOT NULL DEFAULT '{}',
		np_name          TEXT NOT NULL DEFAULT '',
		np_amount        TEXT NOT NULL DEFAULT '0',
		total_annotation TEXT NOT NULL DEFAULT 'red',
		is_approved      INTEGER NOT NULL DEFAULT 0,
		version          INTEGER NOT NULL DEFAULT 1,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL,
		PRIMARY KEY (party_id, week_number, week_year)
	);

	CREATE INDEX IF NOT EXISTS idx_day_buckets_window
		ON day_buckets(week_start, week_end);
	CREATE INDEX IF NOT EXISTS idx_day_buckets_party
		ON day_buckets(party_id, created_at DESC);

	-- Range-shaped weekly buckets
	CREATE TABLE IF NOT EXISTS range_buckets (
		party_id         TEXT NOT NULL,
		week_number      INTEGER NOT NULL,
		week_year        INTEGER NOT NULL,
		week_start       TEXT NOT NULL,
		week_end         TEXT NOT NULL,
		ranges_json      TEXT NOT NULL DEFAULT '[]',
		np_name          TEXT NOT NULL DEFAULT '',
		np_amount        TEXT NOT NULL DEFAULT '0',
		total_annotation TEXT NOT NULL DEFAULT 'red',
		is_approved      INTEGER NOT NULL DEFAULT 0,
		version          INTEGER NOT NULL DEFAULT 1,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL,
		PRIMARY KEY (party_id, week_number, week_year)
	);

	CREATE INDEX IF NOT EXISTS idx_range_buckets_window
		ON range_buckets(week_start, week_end);
	CREATE INDEX IF NOT EXISTS idx_range_buckets_party
		ON range_buckets(party_id, created_at DESC);

	-- Party directory
	CREATE TABLE IF NOT EXISTS parties (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		code       TEXT NOT NULL DEFAULT '',
		party_type TEXT NOT NULL,
		is_active  INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Expense records
	CREATE TABLE IF NOT EXISTS expenses (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		amount      TEXT NOT NULL,
		spent_on    TEXT NOT NULL,
		category    TEXT NOT NULL,
		remarks     TEXT NOT NULL DEFAULT '',
		week_number INTEGER NOT NULL,
		week_year   INTEGER NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(spent_on);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// JSON ENTRY ENCODING
// =============================================================================
// Entry collections live as JSON columns: the engine always reads and
// rewrites a bucket whole, so per-entry rows would only buy contention.

type dayEntryJSON struct {
	Date       string                 `json:"date"`
	Fields     ledger.FinancialFields `json:"fields"`
	Annotation ledger.Annotation      `json:"annotation"`
}

type rangeEntryJSON struct {
	Start      string                 `json:"startDate"`
	End        string                 `json:"endDate"`
	Fields     ledger.FinancialFields `json:"fields"`
	Annotation ledger.Annotation      `json:"annotation"`
}

func encodeDays(days map[string]ledger.DayEntry) (string, error) {
	out := make(map[string]dayEntryJSON, len(days))
	for k, e := range days {
		out[k] = dayEntryJSON{Date: weekclock.DayKey(e.Date), Fields: e.Fields, Annotation: e.Annotation}
	}
	raw, err := json.Marshal(out)
	return string(raw), err
}

func decodeDays(raw string) (map[string]ledger.DayEntry, error) {
	var in map[string]dayEntryJSON
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, err
	}
	out := make(map[string]ledger.DayEntry, len(in))
	for k, e := range in {
		date, err := weekclock.ParseDay(e.Date)
		if err != nil {
			return nil, err
		}
		out[k] = ledger.DayEntry{Date: date, Fields: e.Fields, Annotation: e.Annotation}
	}
	return out, nil
}

func encodeRanges(ranges []ledger.RangeEntry) (string, error) {
	out := make([]rangeEntryJSON, len(ranges))
	for i, e := range ranges {
		out[i] = rangeEntryJSON{
			Start:      weekclock.DayKey(e.Start),
			End:        weekclock.DayKey(e.End),
			Fields:     e.Fields,
			Annotation: e.Annotation,
		}
	}
	raw, err := json.Marshal(out)
	return string(raw), err
}

func decodeRanges(raw string) ([]ledger.RangeEntry, error) {
	var in []rangeEntryJSON
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, err
	}
	out := make([]ledger.RangeEntry, len(in))
	for i, e := range in {
		start, err := weekclock.ParseDay(e.Start)
		if err != nil {
			return nil, err
		}
		end, err := weekclock.ParseDay(e.End)
		if err != nil {
			return nil, err
		}
		out[i] = ledger.RangeEntry{Start: start, End: end, Fields: e.Fields, Annotation: e.Annotation}
	}
	return out, nil
}

// =============================================================================
// DAY BUCKETS (ledger.DayStore)
// =============================================================================

const dayBucketColumns = `party_id, week_number, week_year, week_start, week_end,
	days_json, np_name, np_amount, total_annotation, is_approved, version, created_at, updated_at`

func scanDayBucket(row interface{ Scan(...any) error }) (*ledger.DayBucket, int64, error) {
	var (
		b                              ledger.DayBucket
		weekStart, weekEnd, daysJSON   string
		npAmount, createdAt, updatedAt string
		version                        int64
	)
	err := row.Scan(&b.Key.PartyID, &b.Key.WeekNumber, &b.Key.WeekYear, &weekStart, &weekEnd,
		&daysJSON, &b.NetPayable.Name, &npAmount, &b.TotalAnnotation, &b.IsApproved,
		&version, &createdAt, &updatedAt)
	if err != nil {
		return nil, 0, err
	}
	if b.WeekStart, err = weekclock.ParseDay(weekStart); err != nil {
		return nil, 0, err
	}
	end, err := weekclock.ParseDay(weekEnd)
	if err != nil {
		return nil, 0, err
	}
	b.WeekEnd = weekclock.EndOfDay(end)
	if b.Days, err = decodeDays(daysJSON); err != nil {
		return nil, 0, err
	}
	if b.NetPayable.Amount, err = decimal.NewFromString(npAmount); err != nil {
		return nil, 0, err
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, 0, err
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, 0, err
	}
	return &b, version, nil
}

// FindDay returns the bucket for key, or ledger.ErrNotFound.
func (s *Store) FindDay(ctx context.Context, key ledger.WeekKey) (*ledger.DayBucket, error) {
	b, _, err := s.loadDay(ctx, key)
	return b, err
}

func (s *Store) loadDay(ctx context.Context, key ledger.WeekKey) (*ledger.DayBucket, int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+dayBucketColumns+` FROM day_buckets
		WHERE party_id = ? AND week_number = ? AND week_year = ?`,
		key.PartyID, key.WeekNumber, key.WeekYear)

	b, version, err := scanDayBucket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("day bucket %s/%d/%d: %w", key.PartyID, key.WeekNumber, key.WeekYear, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, 0, storeErr("load day bucket", err)
	}
	return b, version, nil
}

// FindDaysOverlapping returns every day bucket whose week intersects
// [start, end].
func (s *Store) FindDaysOverlapping(ctx context.Context, start, end time.Time) ([]*ledger.DayBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dayBucketColumns+` FROM day_buckets
		WHERE week_start <= ? AND week_end >= ?
		ORDER BY created_at DESC, week_year DESC, week_number DESC`,
		weekclock.DayKey(end), weekclock.DayKey(start))
	if err != nil {
		return nil, storeErr("query day buckets", err)
	}
	defer rows.Close()
	return collectDayBuckets(rows)
}

// FindDaysByParty returns all day buckets for a party, most recent first.
func (s *Store) FindDaysByParty(ctx context.Context, partyID string) ([]*ledger.DayBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dayBucketColumns+` FROM day_buckets
		WHERE party_id = ?
		ORDER BY created_at DESC, week_year DESC, week_number DESC`, partyID)
	if err != nil {
		return nil, storeErr("query day buckets", err)
	}
	defer rows.Close()
	return collectDayBuckets(rows)
}

func collectDayBuckets(rows *sql.Rows) ([]*ledger.DayBucket, error) {
	var out []*ledger.DayBucket
	for rows.Next() {
		b, _, err := scanDayBucket(rows)
		if err != nil {
			return nil, storeErr("scan day bucket", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("scan day buckets", err)
	}
	return out, nil
}

// UpsertDay fetches-or-creates the bucket for key and applies mutate under
// optimistic concurrency control.
func (s *Store) UpsertDay(ctx context.Context, key ledger.WeekKey, mutate ledger.DayMutator) (*ledger.DayBucket, error) {
	for attempt := 0; attempt < maxUpsertRetries; attempt++ {
		bucket, version, err := s.loadDay(ctx, key)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			bucket = &ledger.DayBucket{Key: key, Days: make(map[string]ledger.DayEntry)}
			version = 0
		case err != nil:
			return nil, err
		}

		if err := mutate(bucket); err != nil {
			return nil, err
		}

		saved, err := s.saveDay(ctx, bucket, version)
		if err != nil {
			if isUniqueConstraintError(err) && version == 0 {
				continue // lost an insert race, reread and retry
			}
			return nil, storeErr("save day bucket", err)
		}
		if saved {
			return bucket, nil
		}
		// Version moved under us, retry with fresh state.
	}
	return nil, fmt.Errorf("upsert day bucket %s/%d/%d: %w", key.PartyID, key.WeekNumber, key.WeekYear, ledger.ErrConflict)
}

func (s *Store) saveDay(ctx context.Context, b *ledger.DayBucket, version int64) (bool, error) {
	daysJSON, err := encodeDays(b.Days)
	if err != nil {
		return false, err
	}

	if version == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO day_buckets (`+dayBucketColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			b.Key.PartyID, b.Key.WeekNumber, b.Key.WeekYear,
			weekclock.DayKey(b.WeekStart), weekclock.DayKey(b.WeekEnd),
			daysJSON, b.NetPayable.Name, b.NetPayable.Amount.String(),
			string(b.TotalAnnotation), b.IsApproved,
			b.CreatedAt.UTC().Format(time.RFC3339Nano), b.UpdatedAt.UTC().Format(time.RFC3339Nano))
		return err == nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE day_buckets SET
			week_start = ?, week_end = ?, days_json = ?, np_name = ?, np_amount = ?,
			total_annotation = ?, is_approved = ?, version = version + 1, updated_at = ?
		WHERE party_id = ? AND week_number = ? AND week_year = ? AND version = ?`,
		weekclock.DayKey(b.WeekStart), weekclock.DayKey(b.WeekEnd),
		daysJSON, b.NetPayable.Name, b.NetPayable.Amount.String(),
		string(b.TotalAnnotation), b.IsApproved, b.UpdatedAt.UTC().Format(time.RFC3339Nano),
		b.Key.PartyID, b.Key.WeekNumber, b.Key.WeekYear, version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// =============================================================================
// RANGE BUCKETS (ledger.RangeStore)
// =============================================================================

const rangeBucketColumns = `party_id, week_number, week_year, week_start, week_end,
	ranges_json, np_name, np_amount, total_annotation, is_approved, version, created_at, updated_at`

func scanRangeBucket(row interface{ Scan(...any) error }) (*ledger.RangeBucket, int64, error) {
	var (
		b                              ledger.RangeBucket
		weekStart, weekEnd, rangesJSON string
		npAmount, createdAt, updatedAt string
		version                        int64
	)
	err := row.Scan(&b.Key.PartyID, &b.Key.WeekNumber, &b.Key.WeekYear, &weekStart, &weekEnd,
		&rangesJSON, &b.NetPayable.Name, &npAmount, &b.TotalAnnotation, &b.IsApproved,
		&version, &createdAt, &updatedAt)
	if err != nil {
		return nil, 0, err
	}
	if b.WeekStart, err = weekclock.ParseDay(weekStart); err != nil {
		return nil, 0, err
	}
	end, err := weekclock.ParseDay(weekEnd)
	if err != nil {
		return nil, 0, err
	}
	b.WeekEnd = weekclock.EndOfDay(end)
	if b.Ranges, err = decodeRanges(rangesJSON); err != nil {
		return nil, 0, err
	}
	if b.NetPayable.Amount, err = decimal.NewFromString(npAmount); err != nil {
		return nil, 0, err
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, 0, err
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, 0, err
	}
	return &b, version, nil
}

// FindRange returns the bucket for key, or ledger.ErrNotFound.
func (s *Store) FindRange(ctx context.Context, key ledger.WeekKey) (*ledger.RangeBucket, error) {
	b, _, err := s.loadRange(ctx, key)
	return b, err
}

func (s *Store) loadRange(ctx context.Context, key ledger.WeekKey) (*ledger.RangeBucket, int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+rangeBucketColumns+` FROM range_buckets
		WHERE party_id = ? AND week_number = ? AND week_year = ?`,
		key.PartyID, key.WeekNumber, key.WeekYear)

	b, version, err := scanRangeBucket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("range bucket %s/%d/%d: %w", key.PartyID, key.WeekNumber, key.WeekYear, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, 0, storeErr("load range bucket", err)
	}
	return b, version, nil
}

// FindRangesOverlapping returns every range bucket whose week intersects
// [start, end].
func (s *Store) FindRangesOverlapping(ctx context.Context, start, end time.Time) ([]*ledger.RangeBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rangeBucketColumns+` FROM range_buckets
		WHERE week_start <= ? AND week_end >= ?
		ORDER BY created_at DESC, week_year DESC, week_number DESC`,
		weekclock.DayKey(end), weekclock.DayKey(start))
	if err != nil {
		return nil, storeErr("query range buckets", err)
	}
	defer rows.Close()
	return collectRangeBuckets(rows)
}

// FindRangesByParty returns all range buckets for a party, most recent first.
func (s *Store) FindRangesByParty(ctx context.Context, partyID string) ([]*ledger.RangeBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rangeBucketColumns+` FROM range_buckets
		WHERE party_id = ?
		ORDER BY created_at DESC, week_year DESC, week_number DESC`, partyID)
	if err != nil {
		return nil, storeErr("query range buckets", err)
	}
	defer rows.Close()
	return collectRangeBuckets(rows)
}

func collectRangeBuckets(rows *sql.Rows) ([]*ledger.RangeBucket, error) {
	var out []*ledger.RangeBucket
	for rows.Next() {
		b, _, err := scanRangeBucket(rows)
		if err != nil {
			return nil, storeErr("scan range bucket", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("scan range buckets", err)
	}
	return out, nil
}

// UpsertRange fetches-or-creates the bucket for key and applies mutate
// under optimistic concurrency control.
func (s *Store) UpsertRange(ctx context.Context, key ledger.WeekKey, mutate ledger.RangeMutator) (*ledger.RangeBucket, error) {
	for attempt := 0; attempt < maxUpsertRetries; attempt++ {
		bucket, version, err := s.loadRange(ctx, key)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			bucket = &ledger.RangeBucket{Key: key}
			version = 0
		case err != nil:
			return nil, err
		}

		if err := mutate(bucket); err != nil {
			return nil, err
		}

		saved, err := s.saveRange(ctx, bucket, version)
		if err != nil {
			if isUniqueConstraintError(err) && version == 0 {
				continue
			}
			return nil, storeErr("save range bucket", err)
		}
		if saved {
			return bucket, nil
		}
	}
	return nil, fmt.Errorf("upsert range bucket %s/%d/%d: %w", key.PartyID, key.WeekNumber, key.WeekYear, ledger.ErrConflict)
}

func (s *Store) saveRange(ctx context.Context, b *ledger.RangeBucket, version int64) (bool, error) {
	rangesJSON, err := encodeRanges(b.Ranges)
	if err != nil {
		return false, err
	}

	if version == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO range_buckets (`+rangeBucketColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			b.Key.PartyID, b.Key.WeekNumber, b.Key.WeekYear,
			weekclock.DayKey(b.WeekStart), weekclock.DayKey(b.WeekEnd),
			rangesJSON, b.NetPayable.Name, b.NetPayable.Amount.String(),
			string(b.TotalAnnotation), b.IsApproved,
			b.CreatedAt.UTC().Format(time.RFC3339Nano), b.UpdatedAt.UTC().Format(time.RFC3339Nano))
		return err == nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE range_buckets SET
			week_start = ?, week_end = ?, ranges_json = ?, np_name = ?, np_amount = ?,
			total_annotation = ?, is_approved = ?, version = version + 1, updated_at = ?
		WHERE party_id = ? AND week_number = ? AND week_year = ? AND version = ?`,
		weekclock.DayKey(b.WeekStart), weekclock.DayKey(b.WeekEnd),
		rangesJSON, b.NetPayable.Name, b.NetPayable.Amount.String(),
		string(b.TotalAnnotation), b.IsApproved, b.UpdatedAt.UTC().Format(time.RFC3339Nano),
		b.Key.PartyID, b.Key.WeekNumber, b.Key.WeekYear, version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// =============================================================================
// PARTIES (party.Store, ledger.PartyResolver)
// =============================================================================

// CreateParty inserts a new party record.
func (s *Store) CreateParty(ctx context.Context, p party.Party) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parties (id, name, code, party_type, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Code, string(p.Type), p.IsActive,
		p.CreatedAt.UTC().Format(time.RFC3339Nano), p.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return storeErr("create party", err)
	}
	return nil
}

// GetParty returns one party, or ledger.ErrNotFound.
func (s *Store) GetParty(ctx context.Context, id string) (*party.Party, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, code, party_type, is_active, created_at, updated_at
		FROM parties WHERE id = ?`, id)
	p, err := scanParty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("party %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get party", err)
	}
	return p, nil
}

// ListParties returns parties matching the filter, name ascending.
func (s *Store) ListParties(ctx context.Context, f party.Filter) ([]party.Party, error) {
	query := `SELECT id, name, code, party_type, is_active, created_at, updated_at FROM parties`
	var conds []string
	var args []any
	if f.Type != "" {
		conds = append(conds, "party_type = ?")
		args = append(args, string(f.Type))
	}
	if f.ActiveOnly {
		conds = append(conds, "is_active = 1")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list parties", err)
	}
	defer rows.Close()

	var out []party.Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, storeErr("scan party", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateParty rewrites a party's mutable fields.
func (s *Store) UpdateParty(ctx context.Context, p party.Party) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE parties SET name = ?, code = ?, party_type = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Code, string(p.Type), p.IsActive,
		time.Now().UTC().Format(time.RFC3339Nano), p.ID)
	if err != nil {
		return storeErr("update party", err)
	}
	return requireRow(res, "party "+p.ID)
}

// DeactivateParty flags a party inactive.
func (s *Store) DeactivateParty(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE parties SET is_active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return storeErr("deactivate party", err)
	}
	return requireRow(res, "party "+id)
}

// ResolveParties returns display metadata for the given party IDs.
// Unknown IDs are simply absent from the result.
func (s *Store) ResolveParties(ctx context.Context, ids []string) (map[string]ledger.PartyMeta, error) {
	out := make(map[string]ledger.PartyMeta, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, code FROM parties WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, storeErr("resolve parties", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var meta ledger.PartyMeta
		if err := rows.Scan(&id, &meta.Name, &meta.Code); err != nil {
			return nil, storeErr("resolve parties", err)
		}
		out[id] = meta
	}
	return out, rows.Err()
}

func scanParty(row interface{ Scan(...any) error }) (*party.Party, error) {
	var p party.Party
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Type, &p.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// EXPENSES (expense.Store)
// =============================================================================

// CreateExpense inserts a new expense record.
func (s *Store) CreateExpense(ctx context.Context, e expense.Expense) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, name, amount, spent_on, category, remarks,
			week_number, week_year, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Amount.String(), weekclock.DayKey(e.Date), string(e.Category),
		e.Remarks, e.WeekNumber, e.WeekYear,
		e.CreatedAt.UTC().Format(time.RFC3339Nano), e.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return storeErr("create expense", err)
	}
	return nil
}

// ListExpenses returns expenses matching the filter, date ascending.
func (s *Store) ListExpenses(ctx context.Context, f expense.Filter) ([]expense.Expense, error) {
	query := `SELECT id, name, amount, spent_on, category, remarks,
		week_number, week_year, created_at, updated_at FROM expenses`
	var conds []string
	var args []any
	if !f.Start.IsZero() {
		conds = append(conds, "spent_on >= ?")
		args = append(args, weekclock.DayKey(f.Start))
	}
	if !f.End.IsZero() {
		conds = append(conds, "spent_on <= ?")
		args = append(args, weekclock.DayKey(f.End))
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY spent_on ASC, created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list expenses", err)
	}
	defer rows.Close()

	var out []expense.Expense
	for rows.Next() {
		var e expense.Expense
		var amount, spentOn, createdAt, updatedAt string
		if err := rows.Scan(&e.ID, &e.Name, &amount, &spentOn, &e.Category, &e.Remarks,
			&e.WeekNumber, &e.WeekYear, &createdAt, &updatedAt); err != nil {
			return nil, storeErr("scan expense", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, storeErr("scan expense", err)
		}
		if e.Date, err = weekclock.ParseDay(spentOn); err != nil {
			return nil, storeErr("scan expense", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, storeErr("scan expense", err)
		}
		if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, storeErr("scan expense", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteExpense removes an expense record.
func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete expense", err)
	}
	return requireRow(res, "expense "+id)
}

// =============================================================================
// HELPERS
// =============================================================================

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ledger.ErrStoreUnavailable)
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ledger.ErrNotFound)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed"))
}
