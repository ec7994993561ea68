package source

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	"github.com/rowplane/rowplane/database"
	"github.com/rowplane/rowplane/internal/driver"
	"github.com/rowplane/rowplane/internal/row"
)

// DefaultBatchSize is the number of records the SQL source reads per query.
const DefaultBatchSize = 500

// SQL reads rows from a query, one page at a time. A page is read completely
// before its rows are handed out, so the connection is free for map and
// destination writes in between. Pages are ordered by the id columns, or by
// order_by when the ids are derived and not columns of the query.
//
//	source:
//	  plugin: sql
//	  ids: [nid]
//	  query: SELECT nid, title, status FROM node
//	  database_url: postgres://legacy@db/site
type SQL struct {
	ids       []string
	orderBy   []string
	query     string
	batchSize int
	url       string
	db        *sql.DB
	dialect   database.Driver
}

// NewSQL builds a SQL source. Without database_url the migration database
// is queried.
func NewSQL(cfg Config) (Source, error) {
	query, err := stringOption(cfg.Options, "query")
	if err != nil {
		return nil, err
	}
	query = strings.TrimRight(strings.TrimSpace(query), ";")
	if query == "" {
		return nil, fmt.Errorf("sql source requires a query")
	}

	batchSize, err := intOption(cfg.Options, "batch_size", DefaultBatchSize)
	if err != nil {
		return nil, err
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch_size must be positive")
	}

	orderBy, err := columnList(cfg.Options["order_by"])
	if err != nil {
		return nil, err
	}
	if len(orderBy) == 0 {
		orderBy = cfg.IDs
	}

	url, err := stringOption(cfg.Options, "database_url")
	if err != nil {
		return nil, err
	}
	if url == "" && cfg.DB == nil {
		return nil, fmt.Errorf("sql source has no database connection")
	}

	return &SQL{
		ids:       cfg.IDs,
		orderBy:   orderBy,
		query:     query,
		batchSize: batchSize,
		url:       url,
		db:        cfg.DB,
		dialect:   cfg.Dialect,
	}, nil
}

// IDs implements Source.
func (s *SQL) IDs() []string {
	return s.ids
}

// Rows implements Source.
func (s *SQL) Rows(ctx context.Context) iter.Seq2[*row.Row, error] {
	return func(yield func(*row.Row, error) bool) {
		db, dialect := s.db, s.dialect
		if s.url != "" {
			var err error
			db, dialect, err = driver.Open(ctx, s.url)
			if err != nil {
				yield(nil, fmt.Errorf("sql source: %w", err))
				return
			}
			defer func() { _ = db.Close() }()
		}

		paged := s.pagedQuery(dialect)

		for offset := 0; ; offset += s.batchSize {
			page, err := s.readPage(ctx, db, paged, offset)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, props := range page {
				if !yield(row.New(props), nil) {
					return
				}
			}
			if len(page) < s.batchSize {
				return
			}
		}
	}
}

// pagedQuery wraps the query in a stable order so that LIMIT/OFFSET pages
// neither skip nor repeat records.
func (s *SQL) pagedQuery(dialect database.Driver) string {
	order := make([]string, len(s.orderBy))
	for i, c := range s.orderBy {
		order[i] = "src." + dialect.QuoteIdentifier(c)
	}
	return fmt.Sprintf("SELECT * FROM (%s) src ORDER BY %s LIMIT %s OFFSET %s",
		s.query, strings.Join(order, ", "), dialect.ParameterPlaceholder(1), dialect.ParameterPlaceholder(2))
}

func columnList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			c, ok := item.(string)
			if !ok || c == "" {
				return nil, fmt.Errorf("order_by must list column names")
			}
			out[i] = c
		}
		return out, nil
	default:
		return nil, fmt.Errorf("order_by must be a column name or a list, got %T", raw)
	}
}

func (s *SQL) readPage(ctx context.Context, db *sql.DB, query string, offset int) ([]map[string]any, error) {
	rows, err := db.QueryContext(ctx, query, s.batchSize, offset)
	if err != nil {
		return nil, fmt.Errorf("sql source query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sql source: %w", err)
	}

	var page []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("sql source: failed to scan row: %w", err)
		}

		props := make(map[string]any, len(columns))
		for i, name := range columns {
			// drivers hand back text columns as []byte
			if b, ok := values[i].([]byte); ok {
				props[name] = string(b)
			} else {
				props[name] = values[i]
			}
		}
		page = append(page, props)
	}
	return page, rows.Err()
}
