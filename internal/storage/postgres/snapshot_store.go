package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/tollwatch/scraiper/internal/toll"
)

// ErrNoSnapshots is returned when the history ledger is empty.
var ErrNoSnapshots = errors.New("no snapshots committed yet")

const (
	historyTable        = "toll_facility_history"
	snapshotTablePrefix = "toll_facilities_"
)

const createHistoryTableSQL = `
CREATE TABLE IF NOT EXISTS toll_facility_history (
	event_time bigint NOT NULL PRIMARY KEY
)`

const createSnapshotTableSQL = `
CREATE TABLE IF NOT EXISTS %s (
	id SERIAL PRIMARY KEY,
	state_or_province VARCHAR(255) NOT NULL,
	facility_label VARCHAR(255) NOT NULL,
	toll_operator VARCHAR(255) NOT NULL,
	facility_type VARCHAR(255) NOT NULL,
	road_type VARCHAR(255) NOT NULL,
	interstate boolean NOT NULL,
	facility_open_date VARCHAR(255) NOT NULL,
	revenue_lane_miles float NOT NULL,
	revenue float NOT NULL,
	length_miles float NOT NULL,
	lane float NOT NULL,
	source_type VARCHAR(255) NOT NULL,
	reference VARCHAR(255) NOT NULL,
	year integer NOT NULL
)`

var snapshotColumns = []string{
	"state_or_province",
	"facility_label",
	"toll_operator",
	"facility_type",
	"road_type",
	"interstate",
	"facility_open_date",
	"revenue_lane_miles",
	"revenue",
	"length_miles",
	"lane",
	"source_type",
	"reference",
	"year",
}

// SnapshotStore commits validated records into fresh, timestamp-versioned
// tables and appends a ledger row per commit. Commits never overwrite or
// merge into prior snapshots.
//
// The store assumes a single writer at a time against the ledger; it guards
// identifier collisions only within the process (see nextID).
type SnapshotStore struct {
	pool   querier
	clock  toll.Clock
	logger *zap.Logger

	mu     sync.Mutex
	lastID int64
}

// NewSnapshotStore constructs a SnapshotStore over an existing pool.
func NewSnapshotStore(pool querier, clock toll.Clock, logger *zap.Logger) (*SnapshotStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{pool: pool, clock: clock, logger: logger}, nil
}

// nextID issues an epoch-seconds snapshot identifier, bumped forward when two
// commits land within the same second so IDs stay strictly monotonic within
// the process.
func (s *SnapshotStore) nextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.clock.Now().Unix()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// Commit creates a new snapshot table, appends the ledger entry, and
// bulk-inserts all records in one batch. Persistence failures surface the
// underlying store error; the caller does not retry.
func (s *SnapshotStore) Commit(ctx context.Context, records []toll.TollRate) (int64, error) {
	id := s.nextID()
	table := fmt.Sprintf("%s%d", snapshotTablePrefix, id)

	if _, err := s.pool.Exec(ctx, createHistoryTableSQL); err != nil {
		return 0, fmt.Errorf("ensure history table: %w", err)
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(createSnapshotTableSQL, table)); err != nil {
		return 0, fmt.Errorf("create snapshot table %s: %w", table, err)
	}
	insertHistory := fmt.Sprintf("INSERT INTO %s (event_time) VALUES ($1)", historyTable)
	if _, err := s.pool.Exec(ctx, insertHistory, id); err != nil {
		return 0, fmt.Errorf("append history entry: %w", err)
	}

	copied, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{table},
		snapshotColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{
				r.StateOrProvince,
				r.FacilityLabel,
				r.TollOperator,
				string(r.FacilityType),
				r.RoadType,
				r.Interstate,
				r.FacilityOpenDate,
				r.RevenueLaneMiles,
				r.Revenue,
				r.LengthMiles,
				r.Lane,
				r.SourceType,
				r.Reference,
				r.Year,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("bulk insert into %s: %w", table, err)
	}
	if copied != int64(len(records)) {
		return 0, fmt.Errorf("bulk insert into %s: wrote %d of %d rows", table, copied, len(records))
	}

	s.logger.Info("snapshot committed",
		zap.Int64("snapshot_id", id),
		zap.String("table", table),
		zap.Int("records", len(records)),
	)
	return id, nil
}

// LatestSnapshotID returns the newest ledger entry. The ledger table is
// only created on first Commit; before that it reads as ErrNoSnapshots
// rather than an undefined-table error.
func (s *SnapshotStore) LatestSnapshotID(ctx context.Context) (int64, error) {
	query := fmt.Sprintf("SELECT max(event_time) FROM %s", historyTable)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, ErrNoSnapshots
		}
		return 0, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var latest *int64
	if rows.Next() {
		if err := rows.Scan(&latest); err != nil {
			return 0, fmt.Errorf("scan history: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate history: %w", err)
	}
	if latest == nil {
		return 0, ErrNoSnapshots
	}
	return *latest, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// Records reads back every record of one snapshot.
func (s *SnapshotStore) Records(ctx context.Context, snapshotID int64) ([]toll.TollRate, error) {
	if snapshotID <= 0 {
		return nil, fmt.Errorf("invalid snapshot id %d", snapshotID)
	}
	table := fmt.Sprintf("%s%d", snapshotTablePrefix, snapshotID)
	query := fmt.Sprintf(
		"SELECT state_or_province, facility_label, toll_operator, facility_type, road_type, interstate, "+
			"facility_open_date, revenue_lane_miles, revenue, length_miles, lane, source_type, reference, year "+
			"FROM %s ORDER BY id",
		table,
	)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query snapshot %d: %w", snapshotID, err)
	}
	defer rows.Close()

	var records []toll.TollRate
	for rows.Next() {
		var (
			r            toll.TollRate
			facilityType string
		)
		if err := rows.Scan(
			&r.StateOrProvince,
			&r.FacilityLabel,
			&r.TollOperator,
			&facilityType,
			&r.RoadType,
			&r.Interstate,
			&r.FacilityOpenDate,
			&r.RevenueLaneMiles,
			&r.Revenue,
			&r.LengthMiles,
			&r.Lane,
			&r.SourceType,
			&r.Reference,
			&r.Year,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		r.FacilityType = toll.ParseFacilityType(facilityType)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot %d: %w", snapshotID, err)
	}
	return records, nil
}
