package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/summarysearch/summarysearch/pkg/logger"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresStore reads the corpus from a table with columns
// (id, summary, image_url).
type PostgresStore struct {
	db     *sql.DB
	query  string
	logger *slog.Logger
}

func NewPostgresStore(db *sql.DB, table string) (*PostgresStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid corpus table name %q", table)
	}
	return &PostgresStore{
		db: db,
		query: fmt.Sprintf(
			`SELECT id, summary, COALESCE(image_url, '') FROM %s ORDER BY id`, table),
		logger: logger.WithComponent("corpus-store").With("table", table),
	}, nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("querying corpus: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		var summary sql.NullString
		if err := rows.Scan(&r.ID, &summary, &r.ImageURL); err != nil {
			return nil, fmt.Errorf("scanning corpus row: %w", err)
		}
		r.Text = summary.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating corpus rows: %w", err)
	}
	s.logger.Debug("corpus loaded", "records", len(records))
	return records, nil
}
