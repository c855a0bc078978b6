package daos

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// BatchInsertResult reports the outcome of a batchInsert operation.
type BatchInsertResult struct {
	Success      bool  `json:"success"`
	RowsInserted int64 `json:"rows_inserted"`
}

// ExportCsvResult reports the outcome of an exportCsv operation.
type ExportCsvResult struct {
	Success      bool   `json:"success"`
	RowsExported int64  `json:"rows_exported"`
	OutputPath   string `json:"output_path"`
}

// ImportCsvResult reports the outcome of an importCsv operation.
type ImportCsvResult struct {
	Success      bool  `json:"success"`
	RowsImported int64 `json:"rows_imported"`
}

// BackupResult reports the outcome of a backup operation.
type BackupResult struct {
	Success         bool   `json:"success"`
	DestinationPath string `json:"destination_path"`
	SizeBytes       int64  `json:"size_bytes"`
}

// IntegrityCheckResult reports the engine's own integrity verdict.
type IntegrityCheckResult struct {
	Ok       bool     `json:"ok"`
	Messages []string `json:"messages"`
}

// DatabaseStats reports storage-level details of the current database.
type DatabaseStats struct {
	PageCount     int64  `json:"page_count"`
	PageSize      int64  `json:"page_size"`
	TotalSize     int64  `json:"total_size"`
	FreelistCount int64  `json:"freelist_count"`
	JournalMode   string `json:"journal_mode"`
	AutoVacuum    int64  `json:"auto_vacuum"`
	Encoding      string `json:"encoding"`
}

// BatchInsert inserts many rows into one table inside a single transaction:
// either all rows land or none do. Every row's shape is checked and every
// value marshaled before any execution, so a malformed row in the middle of
// the batch cannot leave partial effects.
func (d *Dao) BatchInsert(ctx context.Context, tableName string, columns []string, rows [][]any, replaceOnConflict bool) (BatchInsertResult, error) {
	if err := ValidateTableName(tableName); err != nil {
		return BatchInsertResult{}, err
	}
	if len(columns) == 0 {
		return BatchInsertResult{}, fmt.Errorf("%w: no columns given", ErrRowShapeMismatch)
	}
	for _, col := range columns {
		if err := ValidateColumnName(col); err != nil {
			return BatchInsertResult{}, err
		}
	}

	bound := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return BatchInsertResult{}, RowShapeMismatchErr(i, len(row), len(columns))
		}
		b, err := BindAll(row)
		if err != nil {
			return BatchInsertResult{}, fmt.Errorf("row %d: %w", i, err)
		}
		bound[i] = b
	}

	verb := "INSERT"
	if replaceOnConflict {
		verb = "INSERT OR REPLACE"
	}
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = "[" + col + "]"
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt := fmt.Sprintf("%s INTO [%s] (%s) VALUES (%s)",
		verb, tableName, strings.Join(quoted, ", "), placeholders)

	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return BatchInsertResult{}, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return BatchInsertResult{}, engineErr("beginning transaction", err)
	}

	prepared, err := tx.PreparexContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return BatchInsertResult{}, engineErr("preparing insert", err)
	}

	var inserted int64
	for i, row := range bound {
		if _, err := prepared.ExecContext(ctx, row...); err != nil {
			tx.Rollback()
			return BatchInsertResult{}, engineErr(fmt.Sprintf("inserting row %d", i), err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return BatchInsertResult{}, engineErr("committing batch insert", err)
	}

	return BatchInsertResult{Success: true, RowsInserted: inserted}, nil
}

// ExportCsv runs a read query and materializes its result set as a CSV file
// inside the sandbox. Cells follow the outbound marshaling rules, so blob
// columns export as lowercase hex and NULLs as empty fields.
func (d *Dao) ExportCsv(ctx context.Context, query, outputPath string, includeHeaders bool) (ExportCsvResult, error) {
	info, err := d.box.Validate(outputPath, PurposeExport)
	if err != nil {
		return ExportCsvResult{}, err
	}

	cls, err := Classify(query)
	if err != nil {
		return ExportCsvResult{}, err
	}
	if !cls.Kind.ReturnsRows() {
		return ExportCsvResult{}, fmt.Errorf("%w: %s statement cannot be exported", ErrNotReadQuery, cls.Kind)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return ExportCsvResult{}, err
	}

	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return ExportCsvResult{}, engineErr("executing export query", err)
	}
	defer rows.Close()

	columns, decltypes, err := columnInfo(rows)
	if err != nil {
		return ExportCsvResult{}, engineErr("reading result columns", err)
	}

	file, err := os.Create(info.Path)
	if err != nil {
		return ExportCsvResult{}, fmt.Errorf("creating export file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if includeHeaders {
		if err := w.Write(columns); err != nil {
			return ExportCsvResult{}, fmt.Errorf("writing CSV header: %w", err)
		}
	}

	var exported int64
	record := make([]string, len(columns))
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return ExportCsvResult{}, engineErr("scanning result row", err)
		}
		for i, v := range raw {
			record[i] = csvCell(decltypes[i], v)
		}
		if err := w.Write(record); err != nil {
			return ExportCsvResult{}, fmt.Errorf("writing CSV row: %w", err)
		}
		exported++
	}
	if err := rows.Err(); err != nil {
		return ExportCsvResult{}, engineErr("iterating result rows", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return ExportCsvResult{}, fmt.Errorf("flushing CSV: %w", err)
	}

	return ExportCsvResult{Success: true, RowsExported: exported, OutputPath: info.Path}, nil
}

// ImportCsv loads a sandboxed CSV file into one table through the batch
// insert path, so the whole import is one atomic transaction. Column names
// come from the header row or, with hasHeaders false, from columnNames.
func (d *Dao) ImportCsv(ctx context.Context, tableName, inputPath string, hasHeaders bool, columnNames []string) (ImportCsvResult, error) {
	info, err := d.box.Validate(inputPath, PurposeImport)
	if err != nil {
		return ImportCsvResult{}, err
	}

	file, err := os.Open(info.Path)
	if err != nil {
		return ImportCsvResult{}, fmt.Errorf("opening import file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return ImportCsvResult{}, fmt.Errorf("reading CSV: %w", err)
	}

	columns := columnNames
	if hasHeaders {
		if len(records) == 0 {
			return ImportCsvResult{}, fmt.Errorf("import file has no header row")
		}
		columns = records[0]
		records = records[1:]
	}
	if len(columns) == 0 {
		return ImportCsvResult{}, fmt.Errorf("no column names given and file has no headers")
	}

	rows := make([][]any, len(records))
	for i, record := range records {
		row := make([]any, len(record))
		for j, field := range record {
			row[j] = field
		}
		rows[i] = row
	}

	res, err := d.BatchInsert(ctx, tableName, columns, rows, false)
	if err != nil {
		return ImportCsvResult{}, err
	}
	return ImportCsvResult{Success: true, RowsImported: res.RowsInserted}, nil
}

// Backup writes a consistent snapshot of the current database to a
// sandboxed destination using the engine's VACUUM INTO, replacing any
// existing file at that path.
func (d *Dao) Backup(ctx context.Context, destinationPath string) (BackupResult, error) {
	info, err := d.box.Validate(destinationPath, PurposeBackup)
	if err != nil {
		return BackupResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return BackupResult{}, err
	}
	if info.Path == d.path {
		return BackupResult{}, fmt.Errorf("%w: backup destination is the live database", ErrPathTraversal)
	}

	// VACUUM INTO refuses to overwrite.
	if info.Existed {
		if err := os.Remove(info.Path); err != nil {
			return BackupResult{}, fmt.Errorf("removing stale backup: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", info.Path); err != nil {
		return BackupResult{}, engineErr("backing up database", err)
	}

	res := BackupResult{Success: true, DestinationPath: info.Path}
	if st, err := os.Stat(info.Path); err == nil {
		res.SizeBytes = st.Size()
	}
	return res, nil
}

// IntegrityCheck runs the engine's integrity check and reports its messages.
func (d *Dao) IntegrityCheck(ctx context.Context) (IntegrityCheckResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return IntegrityCheckResult{}, err
	}

	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return IntegrityCheckResult{}, engineErr("checking integrity", err)
	}
	defer rows.Close()

	res := IntegrityCheckResult{Messages: []string{}}
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return IntegrityCheckResult{}, engineErr("checking integrity", err)
		}
		res.Messages = append(res.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return IntegrityCheckResult{}, engineErr("checking integrity", err)
	}

	res.Ok = len(res.Messages) == 1 && res.Messages[0] == "ok"
	return res, nil
}

// Stats reports storage-level pragmas for the current database.
func (d *Dao) Stats(ctx context.Context) (DatabaseStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return DatabaseStats{}, err
	}

	var s DatabaseStats
	pragmas := []struct {
		stmt string
		dest any
	}{
		{"PRAGMA page_count", &s.PageCount},
		{"PRAGMA page_size", &s.PageSize},
		{"PRAGMA freelist_count", &s.FreelistCount},
		{"PRAGMA journal_mode", &s.JournalMode},
		{"PRAGMA auto_vacuum", &s.AutoVacuum},
		{"PRAGMA encoding", &s.Encoding},
	}
	for _, p := range pragmas {
		if err := db.QueryRowContext(ctx, p.stmt).Scan(p.dest); err != nil {
			return DatabaseStats{}, engineErr(p.stmt, err)
		}
	}
	s.TotalSize = s.PageCount * s.PageSize

	return s, nil
}
