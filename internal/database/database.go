package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/isdelr/rewear-be/internal/config"
	"github.com/isdelr/rewear-be/internal/logger"
	"github.com/isdelr/rewear-be/migrations"
)

// sqlitePragmas are applied through the DSN so every pooled connection gets them.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// retryDelay is the pause before the single retry of a transient failure.
const retryDelay = 50 * time.Millisecond

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps the connection pool with the driver specific query builder and
// error classifier.
type DB struct {
	*sql.DB
	Driver string
	// Builder produces SQL with the placeholder format of Driver.
	Builder    sq.StatementBuilderType
	classifier ErrorClassifier
	log        *logger.Logger
}

// Open connects to the database selected by driver and pings it.
func Open(ctx context.Context, driver, dsn string, log *logger.Logger) (*DB, error) {
	var (
		conn *sql.DB
		err  error
	)

	switch driver {
	case config.DriverSQLite:
		conn, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		// in-memory databases live and die with their connection
		conn.SetMaxOpenConns(1)
	case config.DriverPostgres:
		conn, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening postgres database: %w", err)
		}
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(4)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, driver)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		log.Err(err).Str("driver", driver).Msg("error connecting database (ping)")
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	log.Info().Str("driver", driver).Msg("connected to database successfully")

	return New(conn, driver, log), nil
}

// New wraps an already opened connection.
func New(conn *sql.DB, driver string, log *logger.Logger) *DB {
	db := &DB{
		DB:     conn,
		Driver: driver,
		log:    log,
	}
	if driver == config.DriverPostgres {
		db.Builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
		db.classifier = PostgresErrorClassifier{}
	} else {
		db.Builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)
		db.classifier = SQLiteErrorClassifier{}
	}
	return db
}

func sqliteDSN(dsn string) string {
	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Migrate applies all pending migrations. It is a no-op when the schema is
// already up to date.
func (db *DB) Migrate(ctx context.Context) error {
	dialect := goose.DialectSQLite3
	if db.Driver == config.DriverPostgres {
		dialect = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(dialect, db.DB, migrations.FS)
	if err != nil {
		return fmt.Errorf("migration error creating provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	for _, r := range results {
		db.log.Info().
			Str("migration", r.Source.Path).
			Dur("duration", r.Duration).
			Msg("applied migration")
	}
	return nil
}

// Retry runs fn and retries it once when the error is classified as transient.
func (db *DB) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(retryDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && db.classifier.Classify(err) == Retryable {
			db.log.Warn().Err(err).Msg("transient database error, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

// InTx runs fn inside a transaction, committing when fn returns nil. The
// whole transaction is retried once on a transient failure.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return db.Retry(ctx, func(ctx context.Context) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
		}

		if err := fn(ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: %w", ErrCommittingTransaction, err)
		}
		return nil
	})
}
