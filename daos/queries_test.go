package daos

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestQuery(t *testing.T) {
	d, _ := newTestDao(t)
	ctx := context.Background()

	t.Run("schema statement reports zero rows affected", func(t *testing.T) {
		res, err := d.Query(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, score REAL, avatar BLOB)", nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.RowsAffected != 0 {
			t.Errorf("rows affected = %d, want 0", res.RowsAffected)
		}
		if res.Data != nil {
			t.Error("schema statements should not return data")
		}
	})

	t.Run("insert with parameters", func(t *testing.T) {
		res, err := d.Query(ctx, "INSERT INTO users (name, score) VALUES (?, ?)", []any{"Alice", 91.5})
		if err != nil {
			t.Fatal(err)
		}
		if res.RowsAffected != 1 {
			t.Errorf("rows affected = %d, want 1", res.RowsAffected)
		}
	})

	t.Run("select returns columns and typed data", func(t *testing.T) {
		res, err := d.Query(ctx, "SELECT id, name, score FROM users WHERE name = ?", []any{"Alice"})
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Columns) != 3 || res.Columns[1] != "name" {
			t.Errorf("columns = %v", res.Columns)
		}
		if len(res.Data) != 1 {
			t.Fatalf("rows = %d, want 1", len(res.Data))
		}
		row := res.Data[0]
		if row[0] != int64(1) {
			t.Errorf("id = %#v, want int64(1)", row[0])
		}
		if row[1] != "Alice" {
			t.Errorf("name = %#v, want \"Alice\"", row[1])
		}
		if row[2] != 91.5 {
			t.Errorf("score = %#v, want 91.5", row[2])
		}
	})

	t.Run("null columns come back as null", func(t *testing.T) {
		res, err := d.Query(ctx, "SELECT avatar FROM users WHERE name = ?", []any{"Alice"})
		if err != nil {
			t.Fatal(err)
		}
		if res.Data[0][0] != nil {
			t.Errorf("avatar = %#v, want nil", res.Data[0][0])
		}
	})

	t.Run("blob columns come back as lowercase hex", func(t *testing.T) {
		if _, err := d.Query(ctx, "INSERT INTO users (name, avatar) VALUES (?, ?)", []any{"Bob", []byte{0xde, 0xad}}); err != nil {
			t.Fatal(err)
		}
		res, err := d.Query(ctx, "SELECT avatar FROM users WHERE name = ?", []any{"Bob"})
		if err != nil {
			t.Fatal(err)
		}
		if res.Data[0][0] != "dead" {
			t.Errorf("avatar = %#v, want \"dead\"", res.Data[0][0])
		}
	})

	t.Run("expression select keeps integer typing", func(t *testing.T) {
		res, err := d.Query(ctx, "SELECT 1 + 1", nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Data[0][0] != int64(2) {
			t.Errorf("got %#v, want int64(2)", res.Data[0][0])
		}
	})

	t.Run("pragma returns rows", func(t *testing.T) {
		res, err := d.Query(ctx, "PRAGMA table_info(users)", nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Data) != 4 {
			t.Errorf("pragma rows = %d, want 4", len(res.Data))
		}
	})

	t.Run("engine errors pass through", func(t *testing.T) {
		_, err := d.Query(ctx, "SELECT * FROM no_such_table", nil)
		if err == nil {
			t.Fatal("expected an error")
		}
		if !strings.Contains(err.Error(), "no_such_table") {
			t.Errorf("engine message lost: %v", err)
		}
	})

	t.Run("validation failures never reach the engine", func(t *testing.T) {
		_, err := d.Query(ctx, "DROP TABLE users; SELECT 1", nil)
		if !errors.Is(err, ErrMultipleStatements) {
			t.Fatalf("got %v, want ErrMultipleStatements", err)
		}
		// The table must still exist.
		if _, err := d.Query(ctx, "SELECT COUNT(*) FROM users", nil); err != nil {
			t.Errorf("users table is gone: %v", err)
		}
	})

	t.Run("unsupported parameter", func(t *testing.T) {
		_, err := d.Query(ctx, "SELECT ?", []any{map[string]any{"a": 1}})
		if !errors.Is(err, ErrUnsupportedParameter) {
			t.Errorf("got %v, want ErrUnsupportedParameter", err)
		}
	})
}

func TestQueryRowCap(t *testing.T) {
	dir := t.TempDir()
	box, err := NewSandbox(dir)
	if err != nil {
		t.Fatal(err)
	}
	d := New(box, Options{MaxRows: 2})
	defer d.Close()
	ctx := context.Background()

	if _, err := d.Connect(ctx, dir+"/cap.db", true, false); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Query(ctx, "CREATE TABLE t (id INTEGER)", nil); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := d.Query(ctx, "INSERT INTO t (id) VALUES (?)", []any{i}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := d.Query(ctx, "SELECT id FROM t", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Data) != 2 {
		t.Errorf("rows = %d, want 2", len(res.Data))
	}
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) *Dao {
		d, _ := newTestDao(t)
		if _, err := d.Query(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT NOT NULL)", nil); err != nil {
			t.Fatal(err)
		}
		return d
	}

	count := func(t *testing.T, d *Dao) int64 {
		t.Helper()
		res, err := d.Query(ctx, "SELECT COUNT(*) FROM t", nil)
		if err != nil {
			t.Fatal(err)
		}
		return res.Data[0][0].(int64)
	}

	t.Run("all steps commit", func(t *testing.T) {
		d := setup(t)
		res, err := d.Transaction(ctx, []TxStep{
			{SQL: "INSERT INTO t (v) VALUES (?)", Parameters: []any{"a"}},
			{SQL: "INSERT INTO t (v) VALUES (?)", Parameters: []any{"b"}},
			{SQL: "SELECT COUNT(*) FROM t"},
		}, true)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Success {
			t.Error("expected success")
		}
		if len(res.Results) != 3 {
			t.Errorf("results = %d, want 3", len(res.Results))
		}
		// Reads inside the transaction see earlier steps.
		if res.Results[2].Data[0][0] != int64(2) {
			t.Errorf("in-transaction count = %#v, want 2", res.Results[2].Data[0][0])
		}
		if count(t, d) != 2 {
			t.Error("rows missing after commit")
		}
	})

	t.Run("failing step rolls everything back", func(t *testing.T) {
		d := setup(t)
		_, err := d.Transaction(ctx, []TxStep{
			{SQL: "INSERT INTO t (v) VALUES (?)", Parameters: []any{"a"}},
			{SQL: "INSERT INTO t (v) VALUES (?)", Parameters: []any{"b"}},
			{SQL: "INSERT INTO t (v) VALUES (NULL)"}, // NOT NULL violation
		}, true)
		if err == nil {
			t.Fatal("expected an error")
		}

		var stepErr *StepError
		if !errors.As(err, &stepErr) {
			t.Fatalf("got %T, want *StepError", err)
		}
		if stepErr.Step != 2 {
			t.Errorf("failing step = %d, want 2", stepErr.Step)
		}
		if got := count(t, d); got != 0 {
			t.Errorf("rows after rollback = %d, want 0", got)
		}
	})

	t.Run("validation failure also rolls back", func(t *testing.T) {
		d := setup(t)
		_, err := d.Transaction(ctx, []TxStep{
			{SQL: "INSERT INTO t (v) VALUES ('a')"},
			{SQL: "SELECT 1; SELECT 2"},
		}, true)

		var stepErr *StepError
		if !errors.As(err, &stepErr) {
			t.Fatalf("got %v, want *StepError", err)
		}
		if !errors.Is(err, ErrMultipleStatements) {
			t.Errorf("cause = %v, want ErrMultipleStatements", err)
		}
		if stepErr.Step != 1 {
			t.Errorf("failing step = %d, want 1", stepErr.Step)
		}
		if got := count(t, d); got != 0 {
			t.Errorf("rows after rollback = %d, want 0", got)
		}
	})

	t.Run("without rollback commits what succeeded", func(t *testing.T) {
		d := setup(t)
		res, err := d.Transaction(ctx, []TxStep{
			{SQL: "INSERT INTO t (v) VALUES ('a')"},
			{SQL: "INSERT INTO t (v) VALUES (NULL)"},
			{SQL: "INSERT INTO t (v) VALUES ('c')"}, // never reached
		}, false)
		if err != nil {
			t.Fatal(err)
		}
		if res.Success {
			t.Error("expected success=false")
		}
		if !strings.Contains(res.Message, "step 1") {
			t.Errorf("message should name the failing step: %q", res.Message)
		}
		if got := count(t, d); got != 1 {
			t.Errorf("rows = %d, want 1 (first step committed)", got)
		}
	})

	t.Run("empty transaction succeeds", func(t *testing.T) {
		d := setup(t)
		res, err := d.Transaction(ctx, nil, true)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Success || res.TotalRowsAffected != 0 {
			t.Errorf("unexpected result %+v", res)
		}
	})
}
