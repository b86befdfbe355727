package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations
var migrationsFS embed.FS

// SQL is a Store over database/sql. Schema lives in migrations/<dialect>.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL connects with the named dialect, configures the pool and migrates.
func OpenSQL(ctx context.Context, dialectName, dsn string) (*SQL, error) {
	dialect, err := DialectFor(dialectName)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := dialect.Configure(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure connection: %w", err)
	}
	s := &SQL{db: db, dialect: dialect}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies all pending embedded migrations for the dialect.
func (s *SQL) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, s.dialect.MigrationsDir())
	if err != nil {
		return fmt.Errorf("failed to locate migrations: %w", err)
	}
	provider, err := goose.NewProvider(s.dialect.Goose(), s.db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, r := range results {
		log.Info().Str("dialect", s.dialect.Name()).Str("migration", r.Source.Path).Dur("dur", r.Duration).Msg("migration applied")
	}
	return nil
}

func (s *SQL) NextRoomSeq(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.dialect.Rebind("UPDATE counters SET value = value + 1 WHERE name = ?"), "room"); err != nil {
		return 0, fmt.Errorf("failed to bump room counter: %w", err)
	}
	var seq int64
	if err := tx.QueryRowContext(ctx, s.dialect.Rebind("SELECT value FROM counters WHERE name = ?"), "room").Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read room counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *SQL) GetRoom(ctx context.Context, id string) (RoomRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		"SELECT id, seq, status, is_private, data FROM rooms WHERE id = ?"), id)
	rec, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RoomRecord{}, false, nil
	}
	if err != nil {
		return RoomRecord{}, false, fmt.Errorf("failed to load room %s: %w", id, err)
	}
	return rec, true, nil
}

func (s *SQL) ListRooms(ctx context.Context, f RoomFilter) ([]RoomRecord, error) {
	query := "SELECT id, seq, status, is_private, data FROM rooms WHERE 1 = 1"
	var args []any
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.PublicOnly {
		query += " AND is_private = 0"
	}
	query += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var out []RoomRecord
	for rows.Next() {
		rec, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQL) SaveRoom(ctx context.Context, rec RoomRecord, credits ...XPEntry) error {
	if err := checkCredits(credits); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	private := 0
	if rec.Private {
		private = 1
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(s.dialect.UpsertRoomQuery()),
		rec.ID, rec.Seq, rec.Status, private, string(rec.Data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save room %s: %w", rec.ID, err)
	}
	credit := s.dialect.Rebind(s.dialect.CreditQuery())
	for _, c := range credits {
		if _, err := tx.ExecContext(ctx, credit, c.Player, c.XP); err != nil {
			return fmt.Errorf("failed to credit %s: %w", c.Player, err)
		}
	}
	return tx.Commit()
}

func (s *SQL) PlayerXP(ctx context.Context, player string) (int64, error) {
	var xp int64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind("SELECT xp FROM leaderboard WHERE player = ?"), player).Scan(&xp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return xp, err
}

func (s *SQL) TopXP(ctx context.Context, limit int) ([]XPEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		"SELECT player, xp FROM leaderboard ORDER BY xp DESC, id ASC LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	defer rows.Close()

	out := []XPEntry{}
	for rows.Next() {
		var e XPEntry
		if err := rows.Scan(&e.Player, &e.XP); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQL) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (RoomRecord, error) {
	var (
		rec     RoomRecord
		private int64
		data    string
	)
	if err := row.Scan(&rec.ID, &rec.Seq, &rec.Status, &private, &data); err != nil {
		return RoomRecord{}, err
	}
	rec.Private = private != 0
	rec.Data = []byte(data)
	return rec, nil
}
