package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hirejudge/pkg/utils/logger"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLConfig holds the MySQL pool settings.
type MySQLConfig struct {
	// DSN format: "user:password@tcp(host:port)/dbname?parseTime=true&loc=UTC"
	DSN                string        `yaml:"dsn"`
	MaxOpenConnections int           `yaml:"maxOpenConnections"`
	MaxIdleConnections int           `yaml:"maxIdleConnections"`
	ConnMaxLifetime    time.Duration `yaml:"connMaxLifetime"`
	ConnMaxIdleTime    time.Duration `yaml:"connMaxIdleTime"`
	// SlowQueryThreshold logs statements slower than this; zero disables it.
	SlowQueryThreshold time.Duration `yaml:"slowQueryThreshold"`
	// DeadlockRetries reruns a whole transaction that lost a lock race.
	DeadlockRetries int `yaml:"deadlockRetries"`
}

// MySQL implements Database on a pooled *sql.DB.
type MySQL struct {
	db              *sql.DB
	slow            time.Duration
	deadlockRetries int
}

// NewMySQLWithConfig opens the pool and pings it once.
func NewMySQLWithConfig(config *MySQLConfig) (*MySQL, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("DSN cannot be empty")
	}
	if config.MaxOpenConnections == 0 {
		config.MaxOpenConnections = 25
	}
	if config.MaxIdleConnections == 0 {
		config.MaxIdleConnections = 5
	}
	if config.ConnMaxLifetime == 0 {
		config.ConnMaxLifetime = 5 * time.Minute
	}
	if config.ConnMaxIdleTime == 0 {
		config.ConnMaxIdleTime = 10 * time.Minute
	}
	if config.DeadlockRetries < 0 {
		config.DeadlockRetries = 0
	}

	pool, err := sql.Open("mysql", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	pool.SetMaxOpenConns(config.MaxOpenConnections)
	pool.SetMaxIdleConns(config.MaxIdleConnections)
	pool.SetConnMaxLifetime(config.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &MySQL{db: pool, slow: config.SlowQueryThreshold, deadlockRetries: config.DeadlockRetries}, nil
}

func (m *MySQL) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	defer m.observe(ctx, query, time.Now())
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return rows, nil
}

func (m *MySQL) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	defer m.observe(ctx, query, time.Now())
	return m.db.QueryRowContext(ctx, query, args...)
}

func (m *MySQL) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	defer m.observe(ctx, query, time.Now())
	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w", err)
	}
	return result, nil
}

// Transaction runs fn in a transaction and rolls back when it fails.
// A deadlock or lock wait timeout reruns fn from the start, so fn must not
// keep side effects outside the transaction.
func (m *MySQL) Transaction(ctx context.Context, fn func(tx Transaction) error) error {
	for attempt := 0; ; attempt++ {
		err := m.runTx(ctx, fn)
		if err == nil || !IsRetryableLock(err) || attempt >= m.deadlockRetries || ctx.Err() != nil {
			return err
		}
		logger.Warn(ctx, "transaction lost lock race, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
	}
}

func (m *MySQL) runTx(ctx context.Context, fn func(tx Transaction) error) error {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}
	tx := &mysqlTx{tx: sqlTx, owner: m}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return tx.Commit()
}

func (m *MySQL) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (m *MySQL) Close() error {
	return m.db.Close()
}

func (m *MySQL) observe(ctx context.Context, query string, start time.Time) {
	if m.slow <= 0 {
		return
	}
	if elapsed := time.Since(start); elapsed >= m.slow {
		logger.Warn(ctx, "slow query", zap.Duration("elapsed", elapsed), zap.String("query", query))
	}
}

type mysqlTx struct {
	tx    *sql.Tx
	owner *MySQL
}

func (t *mysqlTx) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	defer t.owner.observe(ctx, query, time.Now())
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transaction query failed: %w", err)
	}
	return rows, nil
}

func (t *mysqlTx) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	defer t.owner.observe(ctx, query, time.Now())
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *mysqlTx) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	defer t.owner.observe(ctx, query, time.Now())
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transaction exec failed: %w", err)
	}
	return result, nil
}

func (t *mysqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *mysqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}
