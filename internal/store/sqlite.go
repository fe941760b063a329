package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/forecast-cli/internal/forecast"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS forecasts (
	id                        TEXT PRIMARY KEY,
	industry                  TEXT NOT NULL,
	size                      TEXT NOT NULL,
	market_condition          TEXT NOT NULL,
	scenario                  TEXT NOT NULL,
	iterations                INTEGER NOT NULL,
	periods                   INTEGER NOT NULL,
	seed                      TEXT NOT NULL,
	bankruptcy_probability    REAL NOT NULL,
	high_growth_probability   REAL NOT NULL,
	profitability_probability REAL NOT NULL,
	cost_ratio_exceeds_revenue INTEGER NOT NULL DEFAULT 0,
	request                   TEXT NOT NULL,
	profile                   TEXT NOT NULL,
	aggregate                 TEXT NOT NULL,
	elapsed_ns                INTEGER NOT NULL DEFAULT 0,
	created_at                DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_forecasts_created_at ON forecasts(created_at);
CREATE INDEX IF NOT EXISTS idx_forecasts_category ON forecasts(industry, size, market_condition);
`

const forecastSummaryColumns = `id, industry, size, market_condition, scenario, iterations, periods, seed,
	bankruptcy_probability, high_growth_probability, profitability_probability, created_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveForecast(ctx context.Context, res *forecast.Result) error {
	if err := checkResult(res); err != nil {
		return err
	}

	requestJSON, err := json.Marshal(res.Request)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal request")
	}
	profileJSON, err := json.Marshal(res.Profile)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}
	aggregateJSON, err := json.Marshal(res.Aggregate)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal aggregate")
	}

	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	prob := res.Aggregate.Probabilities
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO forecasts (id, industry, size, market_condition, scenario, iterations, periods, seed,
			bankruptcy_probability, high_growth_probability, profitability_probability,
			cost_ratio_exceeds_revenue, request, profile, aggregate, elapsed_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			industry = excluded.industry,
			size = excluded.size,
			market_condition = excluded.market_condition,
			scenario = excluded.scenario,
			iterations = excluded.iterations,
			periods = excluded.periods,
			seed = excluded.seed,
			bankruptcy_probability = excluded.bankruptcy_probability,
			high_growth_probability = excluded.high_growth_probability,
			profitability_probability = excluded.profitability_probability,
			cost_ratio_exceeds_revenue = excluded.cost_ratio_exceeds_revenue,
			request = excluded.request,
			profile = excluded.profile,
			aggregate = excluded.aggregate,
			elapsed_ns = excluded.elapsed_ns,
			created_at = excluded.created_at`,
		res.ID, res.Request.Industry, res.Request.Size, res.Request.MarketCondition, res.Request.Scenario,
		res.Aggregate.Runs, res.Aggregate.Periods, formatSeed(res),
		prob.Bankruptcy, prob.HighGrowth, prob.Profitability,
		res.CostRatioExceedsRevenue, string(requestJSON), string(profileJSON), string(aggregateJSON),
		int64(res.Elapsed), createdAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save forecast %s", res.ID)
	}
	return nil
}

func (s *SQLiteStore) GetForecast(ctx context.Context, id string) (*forecast.Result, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, cost_ratio_exceeds_revenue, request, profile, aggregate, elapsed_ns, created_at
		FROM forecasts WHERE id = ?`,
		id,
	)

	var (
		res                                     forecast.Result
		requestJSON, profileJSON, aggregateJSON string
		elapsed                                 int64
	)
	err := row.Scan(&res.ID, &res.CostRatioExceedsRevenue, &requestJSON, &profileJSON, &aggregateJSON, &elapsed, &res.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get forecast %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get forecast %s", id)
	}
	res.Elapsed = time.Duration(elapsed)

	if err := unmarshalResult(&res, []byte(requestJSON), []byte(profileJSON), []byte(aggregateJSON)); err != nil {
		return nil, eris.Wrap(err, "sqlite: get forecast")
	}
	return &res, nil
}

func (s *SQLiteStore) ListForecasts(ctx context.Context, filter ForecastFilter) ([]Summary, error) {
	query := `SELECT ` + forecastSummaryColumns + ` FROM forecasts WHERE 1=1`
	var args []any

	if filter.Industry != "" {
		query += ` AND industry = ?`
		args = append(args, filter.Industry)
	}
	if filter.Size != "" {
		query += ` AND size = ?`
		args = append(args, filter.Size)
	}
	if filter.MarketCondition != "" {
		query += ` AND market_condition = ?`
		args = append(args, filter.MarketCondition)
	}
	if filter.Scenario != "" {
		query += ` AND scenario = ?`
		args = append(args, filter.Scenario)
	}
	query += ` ORDER BY created_at DESC, id`

	query += ` LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list forecasts")
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list forecasts iterate")
}

func (s *SQLiteStore) DeleteForecast(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM forecasts WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete forecast %s", id)
	}
	return checkRowsAffected(res, id)
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "forecast %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSummary(row scannable) (*Summary, error) {
	var sum Summary
	var seed string
	err := row.Scan(&sum.ID, &sum.Industry, &sum.Size, &sum.MarketCondition, &sum.Scenario,
		&sum.Iterations, &sum.Periods, &seed,
		&sum.Bankruptcy, &sum.HighGrowth, &sum.Profitability, &sum.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "scan forecast summary")
	}
	if sum.Seed, err = parseSeed(seed); err != nil {
		return nil, err
	}
	return &sum, nil
}

func unmarshalResult(res *forecast.Result, requestJSON, profileJSON, aggregateJSON []byte) error {
	if err := json.Unmarshal(requestJSON, &res.Request); err != nil {
		return eris.Wrap(err, "unmarshal request")
	}
	if err := json.Unmarshal(profileJSON, &res.Profile); err != nil {
		return eris.Wrap(err, "unmarshal profile")
	}
	if err := json.Unmarshal(aggregateJSON, &res.Aggregate); err != nil {
		return eris.Wrap(err, "unmarshal aggregate")
	}
	return nil
}
