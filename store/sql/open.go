package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// PersistenceConfig satisfies the go-persistence-bun client config.
type PersistenceConfig struct {
	Driver         string
	Server         string
	Debug          bool
	PingTimeout    time.Duration
	OtelIdentifier string
}

func (c PersistenceConfig) GetDebug() bool {
	return c.Debug
}

func (c PersistenceConfig) GetDriver() string {
	return c.Driver
}

func (c PersistenceConfig) GetServer() string {
	return c.Server
}

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "go-integrations"
	}
	return c.OtelIdentifier
}

func OpenPostgres(dsn string) (*bun.DB, error) {
	sqlDB, dialect, err := openSQL(DriverPostgres, dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqlDB, dialect), nil
}

// OpenSQLite opens a single-connection SQLite handle. In-memory databases
// exist per connection, so the pool is pinned to one.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqlDB, dialect, err := openSQL(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqlDB, dialect), nil
}

// NewPersistenceClient opens the driver and wraps it in a go-persistence-bun
// client, which owns migrations.
func NewPersistenceClient(cfg PersistenceConfig) (*persistence.Client, error) {
	sqlDB, dialect, err := openSQL(cfg.Driver, cfg.Server)
	if err != nil {
		return nil, err
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	return client, nil
}

func openSQL(driver, dsn string) (*sql.DB, schema.Dialect, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil, fmt.Errorf("sqlstore: dsn is required")
	}
	var dialect schema.Dialect
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "postgresql", "pg":
		driver = DriverPostgres
		dialect = pgdialect.New()
	case DriverSQLite, "sqlite":
		driver = DriverSQLite
		dialect = sqlitedialect.New()
	default:
		return nil, nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	return sqlDB, dialect, nil
}
