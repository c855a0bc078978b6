package daos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// CreateTableResult reports the outcome of a createTable operation.
type CreateTableResult struct {
	Success      bool   `json:"success"`
	TableName    string `json:"table_name"`
	RowsAffected int64  `json:"rows_affected"`
}

// TableInfo describes one user table.
type TableInfo struct {
	Name     string `json:"name"`
	SQL      string `json:"sql,omitempty"`
	RowCount int64  `json:"row_count"`
}

// ListTablesResult is the outcome of a listTables operation.
type ListTablesResult struct {
	Tables     []TableInfo `json:"tables"`
	TotalCount int         `json:"total_count"`
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	NotNull      bool    `json:"not_null"`
	DefaultValue *string `json:"default_value"`
	PrimaryKey   bool    `json:"primary_key"`
}

// IndexInfo describes one index on a table.
type IndexInfo struct {
	Name    string `json:"name"`
	Unique  bool   `json:"unique"`
	Origin  string `json:"origin"`
	Partial bool   `json:"partial"`
}

// DescribeTableResult is the outcome of a describeTable operation.
type DescribeTableResult struct {
	TableName string       `json:"table_name"`
	Columns   []ColumnInfo `json:"columns"`
	Indexes   []IndexInfo  `json:"indexes"`
}

// CreateTable creates a table from a validated name and a raw column
// definition fragment (e.g. "id INTEGER PRIMARY KEY, name TEXT NOT NULL").
// The assembled statement still passes through the statement classifier, so
// a semicolon smuggled into the fragment is rejected before execution.
func (d *Dao) CreateTable(ctx context.Context, tableName, columns string, ifNotExists bool) (CreateTableResult, error) {
	if err := ValidateTableName(tableName); err != nil {
		return CreateTableResult{}, err
	}
	if strings.TrimSpace(columns) == "" {
		return CreateTableResult{}, ErrEmptyStatement
	}

	exists := ""
	if ifNotExists {
		exists = "IF NOT EXISTS "
	}
	stmt := fmt.Sprintf("CREATE TABLE %s[%s] (%s)", exists, tableName, columns)

	cls, err := Classify(stmt)
	if err != nil {
		return CreateTableResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return CreateTableResult{}, err
	}
	res, err := d.execOne(ctx, db, cls, stmt, nil)
	if err != nil {
		return CreateTableResult{}, err
	}

	return CreateTableResult{
		Success:      true,
		TableName:    tableName,
		RowsAffected: res.RowsAffected,
	}, nil
}

// ListTables returns all user tables with their DDL and row counts. Tables
// internal to the engine (sqlite_*) are excluded.
func (d *Dao) ListTables(ctx context.Context) (ListTablesResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return ListTablesResult{}, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT name, sql FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return ListTablesResult{}, engineErr("listing tables", err)
	}
	defer rows.Close()

	tables := []TableInfo{}
	for rows.Next() {
		var t TableInfo
		var ddl sql.NullString
		if err := rows.Scan(&t.Name, &ddl); err != nil {
			return ListTablesResult{}, engineErr("listing tables", err)
		}
		t.SQL = ddl.String
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return ListTablesResult{}, engineErr("listing tables", err)
	}

	for i := range tables {
		count := fmt.Sprintf("SELECT COUNT(*) FROM [%s]", tables[i].Name)
		if err := db.QueryRowContext(ctx, count).Scan(&tables[i].RowCount); err != nil {
			return ListTablesResult{}, engineErr("counting rows", err)
		}
	}

	return ListTablesResult{Tables: tables, TotalCount: len(tables)}, nil
}

// DescribeTable returns column and index details for one table.
func (d *Dao) DescribeTable(ctx context.Context, tableName string) (DescribeTableResult, error) {
	if err := ValidateTableName(tableName); err != nil {
		return DescribeTableResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return DescribeTableResult{}, err
	}

	res := DescribeTableResult{TableName: tableName, Columns: []ColumnInfo{}, Indexes: []IndexInfo{}}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info([%s])", tableName))
	if err != nil {
		return DescribeTableResult{}, engineErr("describing table", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			col     ColumnInfo
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dflt, &pk); err != nil {
			return DescribeTableResult{}, engineErr("describing table", err)
		}
		col.NotNull = notNull != 0
		col.PrimaryKey = pk != 0
		if dflt.Valid {
			col.DefaultValue = &dflt.String
		}
		res.Columns = append(res.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return DescribeTableResult{}, engineErr("describing table", err)
	}

	idxRows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list([%s])", tableName))
	if err != nil {
		return DescribeTableResult{}, engineErr("listing indexes", err)
	}
	defer idxRows.Close()

	for idxRows.Next() {
		var (
			seq     int
			idx     IndexInfo
			unique  int
			partial int
		)
		if err := idxRows.Scan(&seq, &idx.Name, &unique, &idx.Origin, &partial); err != nil {
			return DescribeTableResult{}, engineErr("listing indexes", err)
		}
		idx.Unique = unique != 0
		idx.Partial = partial != 0
		res.Indexes = append(res.Indexes, idx)
	}
	if err := idxRows.Err(); err != nil {
		return DescribeTableResult{}, engineErr("listing indexes", err)
	}

	return res, nil
}
