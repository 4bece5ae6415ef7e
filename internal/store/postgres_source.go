package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/jobs"
	"github.com/lib/pq"
)

// PostgresSource reads records stored one per row as JSONB in the data
// column of table.
type PostgresSource struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

func NewPostgresSource(db *sql.DB, table string) *PostgresSource {
	return &PostgresSource{
		db:     db,
		table:  table,
		logger: slog.Default().With("component", "postgres-source"),
	}
}

func (s *PostgresSource) Name() string { return "postgres" }

func (s *PostgresSource) Fetch(ctx context.Context) ([]jobs.JobRecord, error) {
	query := fmt.Sprintf("SELECT data FROM %s", pq.QuoteIdentifier(s.table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	var records []jobs.JobRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		var rec jobs.JobRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("skipping malformed record row", "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return records, nil
}
