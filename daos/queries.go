package daos

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// QueryResult is the outcome of one executed statement. Row-returning
// statements populate Columns and Data; for them RowsAffected is the row
// count. Write and schema statements report the engine's affected-row count.
type QueryResult struct {
	Message      string   `json:"message"`
	RowsAffected int64    `json:"rows_affected"`
	Columns      []string `json:"columns"`
	Data         [][]any  `json:"data"`
}

// TxStep is one statement plus its positional parameters inside a
// transaction unit.
type TxStep struct {
	SQL        string `json:"sql"`
	Parameters []any  `json:"parameters"`
}

// TxResult is the outcome of a transaction unit.
type TxResult struct {
	Success           bool          `json:"success"`
	Message           string        `json:"message"`
	TotalRowsAffected int64         `json:"total_rows_affected"`
	Results           []QueryResult `json:"results"`
}

// Query validates, marshals, and executes a single statement against the
// current connection. Validation and parameter marshaling happen before the
// connection lock is taken; only the execute itself holds it.
func (d *Dao) Query(ctx context.Context, sqlText string, params []any) (QueryResult, error) {
	cls, err := Classify(sqlText)
	if err != nil {
		return QueryResult{}, err
	}
	bound, err := BindAll(params)
	if err != nil {
		return QueryResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return QueryResult{}, err
	}
	return d.execOne(ctx, db, cls, sqlText, bound)
}

// Transaction runs an ordered sequence of statements as one atomic unit.
// Each step goes through the same validation, marshaling, and execution as
// Query. With rollbackOnError true (the expected default) any step failure
// rolls back every effect and the error identifies the failing step. With
// rollbackOnError false execution stops at the first failure and whatever
// succeeded is committed.
func (d *Dao) Transaction(ctx context.Context, steps []TxStep, rollbackOnError bool) (TxResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := d.conn()
	if err != nil {
		return TxResult{}, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return TxResult{}, engineErr("beginning transaction", err)
	}

	res := TxResult{Success: true, Message: "Transaction completed successfully"}
	for i, step := range steps {
		r, stepErr := d.execStep(ctx, tx, step)
		if stepErr != nil {
			if rollbackOnError {
				tx.Rollback()
				return TxResult{}, &StepError{Step: i, Err: stepErr}
			}
			res.Success = false
			res.Message = fmt.Sprintf("Transaction stopped at step %d: %v", i, stepErr)
			res.Results = append(res.Results, QueryResult{Message: fmt.Sprintf("error: %v", stepErr)})
			break
		}
		res.TotalRowsAffected += r.RowsAffected
		res.Results = append(res.Results, r)
	}

	if err := tx.Commit(); err != nil {
		return TxResult{}, engineErr("committing transaction", err)
	}
	return res, nil
}

// execStep validates and marshals one transaction step, then executes it on
// the open transaction.
func (d *Dao) execStep(ctx context.Context, tx *sqlx.Tx, step TxStep) (QueryResult, error) {
	cls, err := Classify(step.SQL)
	if err != nil {
		return QueryResult{}, err
	}
	bound, err := BindAll(step.Parameters)
	if err != nil {
		return QueryResult{}, err
	}
	return d.execOne(ctx, tx, cls, step.SQL, bound)
}

// execOne runs one validated, marshaled statement on either the connection
// or an open transaction. Callers must hold d.mu.
func (d *Dao) execOne(ctx context.Context, q sqlx.ExtContext, cls Classification, sqlText string, args []any) (QueryResult, error) {
	if !cls.Kind.ReturnsRows() {
		res, err := q.ExecContext(ctx, sqlText, args...)
		if err != nil {
			return QueryResult{}, engineErr(fmt.Sprintf("executing %s statement", cls.Kind), err)
		}
		affected, _ := res.RowsAffected()
		return QueryResult{
			Message:      "Query executed successfully",
			RowsAffected: affected,
		}, nil
	}

	rows, err := q.QueryxContext(ctx, sqlText, args...)
	if err != nil {
		return QueryResult{}, engineErr(fmt.Sprintf("executing %s statement", cls.Kind), err)
	}
	defer rows.Close()

	columns, decltypes, err := columnInfo(rows)
	if err != nil {
		return QueryResult{}, engineErr("reading result columns", err)
	}

	data := [][]any{}
	for rows.Next() {
		if d.opts.MaxRows > 0 && len(data) >= d.opts.MaxRows {
			break
		}
		raw, err := rows.SliceScan()
		if err != nil {
			return QueryResult{}, engineErr("scanning result row", err)
		}
		row := make([]any, len(raw))
		for i, v := range raw {
			row[i] = ResultValue(decltypes[i], v)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, engineErr("iterating result rows", err)
	}

	return QueryResult{
		Message:      fmt.Sprintf("Query executed successfully, returned %d rows", len(data)),
		RowsAffected: int64(len(data)),
		Columns:      columns,
		Data:         data,
	}, nil
}

// columnInfo returns the result column names and their declared types.
func columnInfo(rows *sqlx.Rows) ([]string, []string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, err
	}
	decltypes := make([]string, len(types))
	for i, t := range types {
		decltypes[i] = t.DatabaseTypeName()
	}
	return columns, decltypes, nil
}
