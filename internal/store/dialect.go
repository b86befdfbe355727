package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Dialect hides the differences between the supported SQL backends.
type Dialect interface {
	// Name is the value accepted by DialectFor.
	Name() string
	// DriverName is passed to sql.Open.
	DriverName() string
	// Goose is the goose dialect used to run migrations.
	Goose() goose.Dialect
	// MigrationsDir is the embedded migrations subdirectory.
	MigrationsDir() string
	// Rebind converts ? placeholders if the driver needs another syntax.
	Rebind(query string) string
	UpsertRoomQuery() string
	CreditQuery() string
	Configure(db *sql.DB) error
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "sqlite":
		return sqliteDialect{driver: "sqlite"}, nil
	case "sqlite3":
		return sqliteDialect{driver: "sqlite3"}, nil
	case "postgres", "postgresql":
		return postgresDialect{}, nil
	case "mysql":
		return mysqlDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", name)
	}
}

// sqliteDialect serves both the pure-Go driver ("sqlite") and the cgo one ("sqlite3").
type sqliteDialect struct{ driver string }

func (d sqliteDialect) Name() string               { return d.driver }
func (d sqliteDialect) DriverName() string         { return d.driver }
func (d sqliteDialect) Goose() goose.Dialect       { return goose.DialectSQLite3 }
func (d sqliteDialect) MigrationsDir() string      { return "migrations/sqlite" }
func (d sqliteDialect) Rebind(query string) string { return query }

func (d sqliteDialect) UpsertRoomQuery() string {
	return `INSERT INTO rooms (id, seq, status, is_private, data, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, is_private = excluded.is_private,
		data = excluded.data, updated_at = excluded.updated_at`
}

func (d sqliteDialect) CreditQuery() string {
	return `INSERT INTO leaderboard (player, xp) VALUES (?, ?)
		ON CONFLICT (player) DO UPDATE SET xp = leaderboard.xp + excluded.xp`
}

func (d sqliteDialect) Configure(db *sql.DB) error {
	// SQLite serializes writers anyway; one connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		return err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return err
	}
	return nil
}

type postgresDialect struct{}

func (postgresDialect) Name() string          { return "postgres" }
func (postgresDialect) DriverName() string    { return "postgres" }
func (postgresDialect) Goose() goose.Dialect  { return goose.DialectPostgres }
func (postgresDialect) MigrationsDir() string { return "migrations/postgres" }

func (postgresDialect) Rebind(query string) string {
	return rewritePlaceholdersToNumbered(query)
}

func (postgresDialect) UpsertRoomQuery() string {
	return `INSERT INTO rooms (id, seq, status, is_private, data, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, is_private = EXCLUDED.is_private,
		data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
}

func (postgresDialect) CreditQuery() string {
	return `INSERT INTO leaderboard (player, xp) VALUES (?, ?)
		ON CONFLICT (player) DO UPDATE SET xp = leaderboard.xp + EXCLUDED.xp`
}

func (postgresDialect) Configure(db *sql.DB) error {
	configurePool(db)
	return nil
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string               { return "mysql" }
func (mysqlDialect) DriverName() string         { return "mysql" }
func (mysqlDialect) Goose() goose.Dialect       { return goose.DialectMySQL }
func (mysqlDialect) MigrationsDir() string      { return "migrations/mysql" }
func (mysqlDialect) Rebind(query string) string { return query }

func (mysqlDialect) UpsertRoomQuery() string {
	return "INSERT INTO rooms (id, seq, status, is_private, data, updated_at) VALUES (?, ?, ?, ?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE status = VALUES(status), is_private = VALUES(is_private), " +
		"data = VALUES(data), updated_at = VALUES(updated_at)"
}

func (mysqlDialect) CreditQuery() string {
	return "INSERT INTO leaderboard (player, xp) VALUES (?, ?) ON DUPLICATE KEY UPDATE xp = xp + VALUES(xp)"
}

func (mysqlDialect) Configure(db *sql.DB) error {
	configurePool(db)
	return nil
}

func configurePool(db *sql.DB) {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
}

var placeholderRegexp = regexp.MustCompile(`\?`)

// rewritePlaceholdersToNumbered converts ? placeholders to $1, $2, etc.
func rewritePlaceholdersToNumbered(query string) string {
	counter := 0
	return placeholderRegexp.ReplaceAllStringFunc(query, func(string) string {
		counter++
		return "$" + strconv.Itoa(counter)
	})
}
