package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbporter/dbporter/database"
)

// fetchRows reads an entire table from the source connection. Rows are
// materialized before any write happens, so a mid-read failure never
// leaves the destination partially written.
func fetchRows(ctx context.Context, source Conn, table string) ([]string, [][]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s", source.Driver.QuoteIdentifier(table))
	rows, err := source.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read columns for table %s: %w", table, err)
	}

	var result [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row from table %s: %w", table, err)
		}
		// Byte slices are only valid until the next Scan
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = append([]byte(nil), b...)
			}
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read table %s: %w", table, err)
	}

	return columns, result, nil
}

// insertRows bulk-inserts rows into the destination in multi-row INSERT
// statements of at most batchSize rows each. Returns the number of rows
// inserted.
func insertRows(ctx context.Context, driver database.Driver, db database.DBTX, table string, columns []string, rows [][]any, batchSize int) (int, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("table %s has no columns", table)
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = driver.QuoteIdentifier(col)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		driver.QuoteIdentifier(table), strings.Join(quoted, ", "))

	// A statement binds rows × columns parameters; wide tables must use
	// smaller batches to stay under the engine's bind-variable limit
	if limit := driver.MaxParameters() / len(columns); limit < batchSize {
		batchSize = limit
	}
	if batchSize < 1 {
		batchSize = 1
	}

	inserted := 0
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		var sb strings.Builder
		sb.WriteString(prefix)
		args := make([]any, 0, len(batch)*len(columns))
		position := 1
		for i, row := range batch {
			if len(row) != len(columns) {
				return inserted, fmt.Errorf("table %s row has %d values, want %d", table, len(row), len(columns))
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(")
			for j := range columns {
				if j > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(driver.Placeholder(position))
				position++
			}
			sb.WriteString(")")
			args = append(args, row...)
		}

		if _, err := db.ExecContext(ctx, sb.String(), args...); err != nil {
			return inserted, fmt.Errorf("failed to insert into table %s: %w", table, err)
		}
		inserted += len(batch)
	}

	return inserted, nil
}
