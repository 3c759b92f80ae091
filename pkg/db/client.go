package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"

	"github.com/dealerhub/showroom/pkg/config"
	"github.com/dealerhub/showroom/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Client wraps the shared GORM connection.
type Client struct {
	conn    *gorm.DB
	dialect string
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// New boots a GORM client. useSQLite switches to a file backed SQLite database
// for local development.
func New(ctx context.Context, cfg config.DBConfig, useSQLite bool, logg *logger.Logger) (*Client, error) {
	var (
		dialector gorm.Dialector
		dialect   string
	)
	switch {
	case useSQLite:
		dialector = sqlite.Open(cfg.SQLitePath)
		dialect = DialectSQLite
	case cfg.DSN == "":
		return nil, fmt.Errorf("database DSN is required")
	default:
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		})
		dialect = DialectPostgres
	}

	conn, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	if dialect == DialectPostgres {
		applyPoolSettings(sqlDB, cfg)
	} else {
		sqlDB.SetMaxOpenConns(1)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "dialect", dialect), "database connection established")
	}

	return &Client{conn: conn, dialect: dialect}, nil
}

// Wrap adopts an existing GORM handle. Tests use it with in-memory SQLite.
func Wrap(conn *gorm.DB) *Client {
	return &Client{conn: conn, dialect: conn.Dialector.Name()}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
		SkipDefaultTransaction: true,
	}
}

func applyPoolSettings(sqlDB *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Dialect names the active driver ("postgres" or "sqlite").
func (c *Client) Dialect() string {
	return c.dialect
}

// SQL exposes the pooled handle for goose.
func (c *Client) SQL() (*sql.DB, error) {
	return c.conn.DB()
}

// Ping verifies the datasource is reachable.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close shuts down the pooled connections.
func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
