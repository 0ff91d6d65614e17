package schema

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/circuitbreaker"
	"github.com/Kocoro-lab/queryrouter/internal/config"
	"github.com/Kocoro-lab/queryrouter/internal/tracing"
)

const columnsQuery = `
SELECT table_name, column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`

// Postgres reads the schema from information_schema.
type Postgres struct {
	db     *circuitbreaker.DatabaseWrapper
	schema string
	logger *zap.Logger
}

// Connect builds the connection pool without dialing. The pool connects on
// first use and reconnects after failures, so a database that is down at
// startup is picked up once it comes back.
func Connect(cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, err := sqlx.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	raw.SetMaxOpenConns(5)
	raw.SetMaxIdleConns(2)
	raw.SetConnMaxLifetime(5 * time.Minute)

	return NewPostgres(circuitbreaker.NewDatabaseWrapper(raw, logger), cfg.Schema, logger), nil
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	p, err := Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p.logger.Info("Schema database connected",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
	)
	return p, nil
}

// NewPostgres wraps an existing connection. An empty schemaName means "public".
func NewPostgres(db *circuitbreaker.DatabaseWrapper, schemaName string, logger *zap.Logger) *Postgres {
	if schemaName == "" {
		schemaName = "public"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{db: db, schema: schemaName, logger: logger}
}

func (p *Postgres) GetTableSchema(ctx context.Context) (Schema, error) {
	ctx, span := tracing.StartSpan(ctx, "schema.lookup")
	defer span.End()

	var cols []Column
	if err := p.db.SelectContext(ctx, &cols, columnsQuery, p.schema); err != nil {
		span.RecordError(err)
		return Schema{}, fmt.Errorf("query information_schema: %w", err)
	}
	s := Group(cols)
	p.logger.Debug("Loaded table schema",
		zap.String("schema", p.schema),
		zap.Int("tables", len(s.Tables)),
		zap.Int("columns", len(cols)),
	)
	return s, nil
}

// Ping checks database reachability for health reporting.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
