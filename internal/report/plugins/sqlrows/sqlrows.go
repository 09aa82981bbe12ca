// Package sqlrows runs squirrel queries and returns rows as maps, the shape
// templates consume.
package sqlrows

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Query runs q and returns every row keyed by column name.
func Query(ctx context.Context, db *sql.DB, q sq.Sqlizer) ([]map[string]any, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlrows: build: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlrows: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlrows: columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlrows: scan: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalize(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlrows: rows: %w", err)
	}
	return out, nil
}

// First returns the first row, or nil when there is none.
func First(ctx context.Context, db *sql.DB, q sq.Sqlizer) (map[string]any, error) {
	rows, err := Query(ctx, db, q)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// normalize turns driver values into JSON-friendly ones.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	}
	return v
}
