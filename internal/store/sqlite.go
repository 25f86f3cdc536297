package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/govm/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Journal writes ---

// RecordLaunch inserts a package and its instruction list in one transaction.
func (s *SQLiteStore) RecordLaunch(ctx context.Context, rec *model.PackageRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "packages", "id", rec.ID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO packages (id, unit_type, parallel_id, size, launched_tick, launched_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Unit.Type), int64(rec.Unit.Parallel), rec.Size,
		int64(rec.LaunchedTick), rec.LaunchedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert package %s: %w", rec.ID, err)
	}

	for i, insID := range rec.InstructionIDs {
		opcode := ""
		if i < len(rec.Opcodes) {
			opcode = rec.Opcodes[i]
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO package_instructions (package_id, seq, instruction_id, opcode) VALUES (?, ?, ?, ?)`,
			rec.ID, i, insID, opcode,
		); err != nil {
			return fmt.Errorf("insert instruction %s of package %s: %w", insID, rec.ID, err)
		}
	}
	return tx.Commit()
}

// RecordRelease marks a package released at tick.
func (s *SQLiteStore) RecordRelease(ctx context.Context, packageID string, tick uint64, failure string) error {
	s.logger.Debug("sql", "op", "update", "table", "packages", "id", packageID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE packages SET released_tick = ?, released_at = ?, failure = ?
		 WHERE id = ? AND released_tick IS NULL`,
		int64(tick), time.Now().UTC().Format(time.RFC3339Nano), failure, packageID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("package %s not found or already released", packageID)
	}
	return nil
}

// RecordIdle appends an idle event.
func (s *SQLiteStore) RecordIdle(ctx context.Context, ev *model.IdleEvent) error {
	s.logger.Debug("sql", "op", "insert", "table", "idle_events", "object", ev.Object)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idle_events (object_id, parallel_id, tick, at) VALUES (?, ?, ?, ?)`,
		int64(ev.Object), int64(ev.Parallel), int64(ev.Tick), ev.At.Format(time.RFC3339Nano),
	)
	return err
}

// --- Queries ---

const packageColumns = `id, unit_type, parallel_id, size, launched_tick, launched_at, released_tick, released_at, failure`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(row rowScanner) (*model.PackageRecord, error) {
	var rec model.PackageRecord
	var unitType, launchedAt string
	var parallel, launchedTick int64
	var releasedTick *int64
	var releasedAt *string

	if err := row.Scan(&rec.ID, &unitType, &parallel, &rec.Size, &launchedTick, &launchedAt,
		&releasedTick, &releasedAt, &rec.Failure); err != nil {
		return nil, err
	}
	rec.Unit = model.UnitID{Type: model.UnitType(unitType), Parallel: model.ParallelID(parallel)}
	rec.LaunchedTick = uint64(launchedTick)
	rec.LaunchedAt, _ = time.Parse(time.RFC3339Nano, launchedAt)
	if releasedTick != nil {
		t := uint64(*releasedTick)
		rec.ReleasedTick = &t
	}
	if releasedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *releasedAt)
		rec.ReleasedAt = &t
	}
	return &rec, nil
}

// loadInstructions fills in the instruction ids and opcodes of rec.
func (s *SQLiteStore) loadInstructions(ctx context.Context, rec *model.PackageRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT instruction_id, opcode FROM package_instructions WHERE package_id = ? ORDER BY seq`, rec.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	rec.InstructionIDs = []string{}
	rec.Opcodes = []string{}
	for rows.Next() {
		var id, opcode string
		if err := rows.Scan(&id, &opcode); err != nil {
			return err
		}
		rec.InstructionIDs = append(rec.InstructionIDs, id)
		rec.Opcodes = append(rec.Opcodes, opcode)
	}
	return rows.Err()
}

// GetPackage returns a package by id, or nil if it is not in the journal.
func (s *SQLiteStore) GetPackage(ctx context.Context, id string) (*model.PackageRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "packages", "id", id)

	rec, err := scanPackage(s.db.QueryRowContext(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadInstructions(ctx, rec); err != nil {
		return nil, fmt.Errorf("load instructions of %s: %w", id, err)
	}
	return rec, nil
}

// ListPackages returns packages newest first, with the total matching count.
func (s *SQLiteStore) ListPackages(ctx context.Context, opts model.ListOptions) ([]*model.PackageRecord, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "packages", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var whereClauses []string
	var countArgs []any
	if opts.Unit != "" {
		whereClauses = append(whereClauses, "unit_type = ?")
		countArgs = append(countArgs, string(opts.Unit))
	}
	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + packageColumns + ` FROM packages` + whereSQL +
		` ORDER BY launched_tick DESC, rowid DESC LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	var recs []*model.PackageRecord
	for rows.Next() {
		rec, err := scanPackage(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, err
	}
	// Close before the per-package queries: in-memory stores hold one connection.
	rows.Close()

	for _, rec := range recs {
		if err := s.loadInstructions(ctx, rec); err != nil {
			return nil, 0, fmt.Errorf("load instructions of %s: %w", rec.ID, err)
		}
	}
	return recs, total, nil
}

// ListIdleEvents returns idle events newest first.
func (s *SQLiteStore) ListIdleEvents(ctx context.Context, opts model.ListOptions) ([]*model.IdleEvent, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "idle_events", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM idle_events`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, parallel_id, tick, at FROM idle_events ORDER BY id DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*model.IdleEvent
	for rows.Next() {
		var ev model.IdleEvent
		var object, parallel, tick int64
		var at string
		if err := rows.Scan(&object, &parallel, &tick, &at); err != nil {
			return nil, 0, err
		}
		ev.Object = model.LogicalObjectID(object)
		ev.Parallel = model.ParallelID(parallel)
		ev.Tick = uint64(tick)
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		events = append(events, &ev)
	}
	return events, total, rows.Err()
}
