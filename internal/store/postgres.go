package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/db"
	"github.com/sells-group/forecast-cli/internal/forecast"
)

// bandsTable receives one row per metric, period and percentile.
const bandsTable = "forecast_bands"

var bandColumns = []string{"forecast_id", "metric", "period", "percentile", "value"}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	schema  string
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
	Schema   string `yaml:"schema" mapstructure:"schema"`
}

const (
	upsertForecastSQL = `INSERT INTO forecasts (id, industry, size, market_condition, scenario, iterations, periods, seed,
	bankruptcy_probability, high_growth_probability, profitability_probability,
	cost_ratio_exceeds_revenue, request, profile, aggregate, elapsed_ns, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (id) DO UPDATE SET
	industry = EXCLUDED.industry,
	size = EXCLUDED.size,
	market_condition = EXCLUDED.market_condition,
	scenario = EXCLUDED.scenario,
	iterations = EXCLUDED.iterations,
	periods = EXCLUDED.periods,
	seed = EXCLUDED.seed,
	bankruptcy_probability = EXCLUDED.bankruptcy_probability,
	high_growth_probability = EXCLUDED.high_growth_probability,
	profitability_probability = EXCLUDED.profitability_probability,
	cost_ratio_exceeds_revenue = EXCLUDED.cost_ratio_exceeds_revenue,
	request = EXCLUDED.request,
	profile = EXCLUDED.profile,
	aggregate = EXCLUDED.aggregate,
	elapsed_ns = EXCLUDED.elapsed_ns,
	created_at = EXCLUDED.created_at`
	deleteBandsSQL    = `DELETE FROM forecast_bands WHERE forecast_id = $1`
	getForecastSQL    = `SELECT id, cost_ratio_exceeds_revenue, request, profile, aggregate, elapsed_ns, created_at FROM forecasts WHERE id = $1`
	deleteForecastSQL = `DELETE FROM forecasts WHERE id = $1`
)

// preparedStatements are prepared on each new connection under their own
// SQL text, so plain Exec/QueryRow calls with the same text reuse them.
var preparedStatements = []string{
	upsertForecastSQL,
	deleteBandsSQL,
	getForecastSQL,
	deleteForecastSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	var schema string
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
		schema = poolCfg.Schema
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	if schema != "" {
		pgxCfg.ConnConfig.RuntimeParams["search_path"] = schema
	}

	// Tables may not exist before the first Migrate; unprepared
	// statements still run as plain SQL.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for _, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, sql, sql); err != nil {
				zap.L().Debug("postgres: statement not prepared", zap.Error(err))
				return nil
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, schema: schema, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS forecasts (
	id                         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	industry                   TEXT NOT NULL,
	size                       TEXT NOT NULL,
	market_condition           TEXT NOT NULL,
	scenario                   TEXT NOT NULL,
	iterations                 INTEGER NOT NULL,
	periods                    INTEGER NOT NULL,
	seed                       TEXT NOT NULL,
	bankruptcy_probability     DOUBLE PRECISION NOT NULL,
	high_growth_probability    DOUBLE PRECISION NOT NULL,
	profitability_probability  DOUBLE PRECISION NOT NULL,
	cost_ratio_exceeds_revenue BOOLEAN NOT NULL DEFAULT false,
	request                    JSONB NOT NULL,
	profile                    JSONB NOT NULL,
	aggregate                  JSONB NOT NULL,
	elapsed_ns                 BIGINT NOT NULL DEFAULT 0,
	created_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_forecasts_created_at ON forecasts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_forecasts_category ON forecasts(industry, size, market_condition);

CREATE TABLE IF NOT EXISTS forecast_bands (
	forecast_id TEXT NOT NULL REFERENCES forecasts(id) ON DELETE CASCADE,
	metric      TEXT NOT NULL,
	period      INTEGER NOT NULL,
	percentile  DOUBLE PRECISION NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (forecast_id, metric, period, percentile)
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if s.schema != "" {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{s.schema}.Sanitize())); err != nil {
			return eris.Wrapf(err, "postgres: create schema %s", s.schema)
		}
	}
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveForecast upserts the forecast row and replaces its band rows in one
// transaction. Band rows are loaded with COPY.
func (s *PostgresStore) SaveForecast(ctx context.Context, res *forecast.Result) error {
	if err := checkResult(res); err != nil {
		return err
	}

	requestJSON, err := json.Marshal(res.Request)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal request")
	}
	profileJSON, err := json.Marshal(res.Profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	aggregateJSON, err := json.Marshal(res.Aggregate)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal aggregate")
	}

	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	prob := res.Aggregate.Probabilities
	if _, err := tx.Exec(ctx, upsertForecastSQL,
		res.ID, res.Request.Industry, res.Request.Size, res.Request.MarketCondition, res.Request.Scenario,
		res.Aggregate.Runs, res.Aggregate.Periods, formatSeed(res),
		prob.Bankruptcy, prob.HighGrowth, prob.Profitability,
		res.CostRatioExceedsRevenue, requestJSON, profileJSON, aggregateJSON,
		int64(res.Elapsed), createdAt.UTC(),
	); err != nil {
		return eris.Wrapf(err, "postgres: upsert forecast %s", res.ID)
	}

	if _, err := tx.Exec(ctx, deleteBandsSQL, res.ID); err != nil {
		return eris.Wrapf(err, "postgres: clear bands %s", res.ID)
	}
	n, err := db.CopyFromSchema(ctx, tx, s.schema, bandsTable, bandColumns, bandRows(res))
	if err != nil {
		return eris.Wrap(err, "postgres: copy bands")
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit tx")
	}

	zap.L().Debug("postgres: forecast saved", zap.String("id", res.ID), zap.Int64("band_rows", n))
	return nil
}

func (s *PostgresStore) GetForecast(ctx context.Context, id string) (*forecast.Result, error) {
	var (
		res                                     forecast.Result
		requestJSON, profileJSON, aggregateJSON []byte
		elapsed                                 int64
	)
	err := s.pool.QueryRow(ctx, getForecastSQL, id).
		Scan(&res.ID, &res.CostRatioExceedsRevenue, &requestJSON, &profileJSON, &aggregateJSON, &elapsed, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get forecast %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get forecast %s", id)
	}
	res.Elapsed = time.Duration(elapsed)

	if err := unmarshalResult(&res, requestJSON, profileJSON, aggregateJSON); err != nil {
		return nil, eris.Wrap(err, "postgres: get forecast")
	}
	return &res, nil
}

func (s *PostgresStore) ListForecasts(ctx context.Context, filter ForecastFilter) ([]Summary, error) {
	query := `SELECT ` + forecastSummaryColumns + ` FROM forecasts WHERE true`
	args := []any{}
	argIdx := 1

	for _, cond := range []struct{ column, value string }{
		{"industry", filter.Industry},
		{"size", filter.Size},
		{"market_condition", filter.MarketCondition},
		{"scenario", filter.Scenario},
	} {
		if cond.value == "" {
			continue
		}
		query += fmt.Sprintf(` AND %s = $%d`, cond.column, argIdx)
		args = append(args, cond.value)
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list forecasts")
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list forecasts")
		}
		out = append(out, *sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list forecasts iterate")
}

func (s *PostgresStore) DeleteForecast(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, deleteForecastSQL, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete forecast %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: delete forecast %s", id)
	}
	return nil
}
