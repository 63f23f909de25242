// Package snowflake adapts warehouse, database, schema, role, storage
// integration and stage kinds to Snowflake DDL over the gosnowflake driver.
package snowflake

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	sf "github.com/snowflakedb/gosnowflake"

	"github.com/lakeforge/lakeforge/internal/diag"
	"github.com/lakeforge/lakeforge/pkg/provider"
)

type Provider struct {
	db *sql.DB
}

func New() *Provider {
	return &Provider{}
}

// Configure opens the connection pool. Account and user come from provider
// settings; the password is only read from SNOWFLAKE_PASSWORD so it never
// lands in a declaration file.
func (p *Provider) Configure(ctx context.Context, settings map[string]any) error {
	cfg := &sf.Config{
		Account:  str(settings, "account"),
		User:     str(settings, "user"),
		Role:     str(settings, "role"),
		Password: os.Getenv("SNOWFLAKE_PASSWORD"),
	}
	if cfg.Account == "" || cfg.User == "" {
		return fmt.Errorf("snowflake provider requires account and user settings")
	}

	dsn, err := sf.DSN(cfg)
	if err != nil {
		return fmt.Errorf("failed to build snowflake DSN: %w", err)
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return fmt.Errorf("failed to open snowflake connection: %w", err)
	}
	p.db = db
	return nil
}

func (p *Provider) Create(ctx context.Context, req *provider.CreateRequest) (*provider.Response, error) {
	switch req.Kind {
	case "snowflake_warehouse":
		return p.createWarehouse(ctx, req.Desired)
	case "snowflake_database":
		return p.createDatabase(ctx, req.Desired)
	case "snowflake_schema":
		return p.createSchema(ctx, req.Desired)
	case "snowflake_role":
		return p.createRole(ctx, req.Desired)
	case "snowflake_storage_integration":
		return p.createStorageIntegration(ctx, req.Desired)
	case "snowflake_stage":
		return p.createStage(ctx, req.Desired)
	}
	return nil, fmt.Errorf("unknown resource kind: %s", req.Kind)
}

func (p *Provider) Update(ctx context.Context, req *provider.UpdateRequest) (*provider.Response, error) {
	switch req.Kind {
	case "snowflake_warehouse":
		return p.updateWarehouse(ctx, req)
	case "snowflake_database":
		return p.updateComment(ctx, "DATABASE", req)
	case "snowflake_schema":
		return p.updateSchemaComment(ctx, req)
	case "snowflake_role":
		return p.updateRole(ctx, req)
	case "snowflake_storage_integration":
		return p.updateStorageIntegration(ctx, req)
	case "snowflake_stage":
		return p.updateStage(ctx, req)
	}
	return nil, fmt.Errorf("unknown resource kind: %s", req.Kind)
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	var stmt string
	switch req.Kind {
	case "snowflake_warehouse":
		stmt = "DROP WAREHOUSE IF EXISTS " + quoteIdent(req.ID)
	case "snowflake_database":
		stmt = "DROP DATABASE IF EXISTS " + quoteIdent(req.ID)
	case "snowflake_schema":
		stmt = "DROP SCHEMA IF EXISTS " + qualifiedSchema(req.Prior)
	case "snowflake_role":
		stmt = "DROP ROLE IF EXISTS " + quoteIdent(req.ID)
	case "snowflake_storage_integration":
		stmt = "DROP INTEGRATION IF EXISTS " + quoteIdent(req.ID)
	case "snowflake_stage":
		stmt = "DROP STAGE IF EXISTS " + qualifiedStage(req.Prior)
	default:
		return fmt.Errorf("unknown resource kind: %s", req.Kind)
	}
	return p.exec(ctx, "delete "+req.Kind, stmt)
}

func (p *Provider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.Response, error) {
	switch req.Kind {
	case "snowflake_storage_integration":
		return p.describeStorageIntegration(ctx, req.ID, req.Prior)
	}
	return &provider.Response{Attributes: req.Prior}, nil
}

func (p *Provider) exec(ctx context.Context, op, stmt string) error {
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return classify(op, err)
	}
	return nil
}

// classify maps a driver error to the engine's taxonomy. Connection-level
// failures are retryable; SQL compilation errors are not.
func classify(op string, err error) error {
	var se *sf.SnowflakeError
	retryable := true
	if errors.As(err, &se) {
		// 1xxx = SQL compilation / object errors, terminal.
		retryable = se.Number >= 2000
	}
	return &diag.AdapterError{Operation: op, Retryable: retryable, Err: err}
}

func str(attrs map[string]any, key string) string {
	if v, ok := attrs[key].(string); ok {
		return v
	}
	return ""
}

// quoteIdent wraps an identifier in double quotes, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteString renders a single-quoted SQL string literal.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func qualifiedSchema(attrs map[string]any) string {
	db, name := str(attrs, "database"), str(attrs, "name")
	return quoteIdent(db) + "." + quoteIdent(name)
}

func qualifiedStage(attrs map[string]any) string {
	return quoteIdent(str(attrs, "database")) + "." + quoteIdent(str(attrs, "schema")) + "." + quoteIdent(str(attrs, "name"))
}
