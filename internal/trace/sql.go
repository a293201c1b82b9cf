package trace

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, "sqlite3"
	_ "modernc.org/sqlite"          // Pure Go SQLite driver, "sqlite"
)

const traceTable = "hotscript_trace"

// SQLSink stores events in a table of a SQL database
type SQLSink struct {
	Driver string
	DB     *sql.DB

	mu     sync.Mutex
	insert string
}

// ParseDSN splits "scheme://rest" into a database/sql driver name and the
// DSN that driver expects.
func ParseDSN(dsn string) (driver, source string, err error) {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "", "", fmt.Errorf("trace DSN %q has no scheme", dsn)
	}
	switch strings.ToLower(scheme) {
	case "sqlite":
		return "sqlite", rest, nil
	case "sqlite3":
		return "sqlite3", rest, nil
	case "postgres", "postgresql":
		return "postgres", dsn, nil
	case "mysql":
		return "mysql", rest, nil
	case "sqlserver", "mssql":
		return "sqlserver", "sqlserver://" + rest, nil
	default:
		return "", "", fmt.Errorf("unsupported database type: %s", scheme)
	}
}

// placeholder returns the n-th (1-based) bind parameter for driver
func placeholder(driver string, n int) string {
	switch driver {
	case "postgres":
		return fmt.Sprintf("$%d", n)
	case "sqlserver":
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

var traceColumns = []string{
	"id", "session", "kind", "at_ns", "target", "detail", "result",
	"last_error", "exception", "duration_us", "error",
}

func createStatement(driver string) string {
	cols := `id VARCHAR(36) NOT NULL PRIMARY KEY,
	session VARCHAR(36) NOT NULL,
	kind VARCHAR(32) NOT NULL,
	at_ns BIGINT NOT NULL,
	target VARCHAR(512) NOT NULL,
	detail VARCHAR(2048),
	result VARCHAR(2048),
	last_error BIGINT,
	exception BIGINT,
	duration_us BIGINT,
	error VARCHAR(2048)`
	if driver == "sqlserver" {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)", traceTable, traceTable, cols)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", traceTable, cols)
}

func insertStatement(driver string) string {
	ph := make([]string, len(traceColumns))
	for i := range ph {
		ph[i] = placeholder(driver, i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		traceTable, strings.Join(traceColumns, ", "), strings.Join(ph, ", "))
}

// OpenSQLSink connects to dsn and makes sure the trace table exists
func OpenSQLSink(dsn string) (*SQLSink, error) {
	driver, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(createStatement(driver)); err != nil {
		db.Close()
		return nil, fmt.Errorf("create trace table: %w", err)
	}
	return &SQLSink{Driver: driver, DB: db, insert: insertStatement(driver)}, nil
}

func (s *SQLSink) Write(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.DB.Exec(s.insert,
		ev.ID, ev.Session, string(ev.Kind), ev.Time.UnixNano(), ev.Target,
		ev.Detail, ev.Result, int64(ev.LastError), int64(ev.Exception),
		ev.Duration.Microseconds(), ev.Err)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	return nil
}

// Recent returns up to limit events of a session, newest first
func (s *SQLSink) Recent(session string, limit int) ([]Event, error) {
	query := fmt.Sprintf("SELECT id, kind, at_ns, target, detail, result, last_error, exception, duration_us, error FROM %s WHERE session = %s ORDER BY at_ns DESC",
		traceTable, placeholder(s.Driver, 1))
	rows, err := s.DB.Query(query, session)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() && len(out) < limit {
		var (
			ev                  Event
			kind                string
			at, lastErr, exc    int64
			dur                 int64
			detail, result, msg sql.NullString
		)
		if err := rows.Scan(&ev.ID, &kind, &at, &ev.Target, &detail, &result, &lastErr, &exc, &dur, &msg); err != nil {
			return nil, err
		}
		ev.Session = session
		ev.Kind = Kind(kind)
		ev.Time = time.Unix(0, at)
		ev.Detail, ev.Result, ev.Err = detail.String, result.String, msg.String
		ev.LastError, ev.Exception = uint32(lastErr), uint32(exc)
		ev.Duration = time.Duration(dur) * time.Microsecond
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLSink) Close() error {
	return s.DB.Close()
}
