package storage

import (
	"database/sql"
	"fmt"
	"maps"
	"slices"
)

// Tables returns the table names of an expected column set, sorted.
func Tables(expected map[string][]string) []string {
	return slices.Sorted(maps.Keys(expected))
}

// MissingColumns reads (table_name, column_name) rows from an
// information_schema query and returns every expected "table.column" that
// is absent, in table order.
func MissingColumns(rows *sql.Rows, expected map[string][]string) ([]string, error) {
	present := make(map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		present[table+"."+column] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	var missing []string
	for _, table := range Tables(expected) {
		for _, column := range expected[table] {
			if !present[table+"."+column] {
				missing = append(missing, table+"."+column)
			}
		}
	}
	return missing, nil
}
