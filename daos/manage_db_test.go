package daos

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBatchInsert(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) *Dao {
		d, _ := newTestDao(t)
		if _, err := d.Query(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, v TEXT NOT NULL)", nil); err != nil {
			t.Fatal(err)
		}
		return d
	}

	t.Run("inserts all rows", func(t *testing.T) {
		d := setup(t)
		res, err := d.BatchInsert(ctx, "items", []string{"v"}, [][]any{{"a"}, {"b"}, {"c"}}, false)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Success || res.RowsInserted != 3 {
			t.Errorf("unexpected result %+v", res)
		}

		sel, err := d.Query(ctx, "SELECT v FROM items ORDER BY id", nil)
		if err != nil {
			t.Fatal(err)
		}
		got := []string{sel.Data[0][0].(string), sel.Data[1][0].(string), sel.Data[2][0].(string)}
		if got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Errorf("values = %v", got)
		}
	})

	t.Run("row shape mismatch fails before execution", func(t *testing.T) {
		d := setup(t)
		_, err := d.BatchInsert(ctx, "items", []string{"v"}, [][]any{{"a"}, {"b", "extra"}}, false)
		if !errors.Is(err, ErrRowShapeMismatch) {
			t.Fatalf("got %v, want ErrRowShapeMismatch", err)
		}
		res, err := d.Query(ctx, "SELECT COUNT(*) FROM items", nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Data[0][0] != int64(0) {
			t.Error("mismatched batch left partial rows")
		}
	})

	t.Run("engine failure mid-batch rolls back all rows", func(t *testing.T) {
		d := setup(t)
		_, err := d.BatchInsert(ctx, "items", []string{"v"}, [][]any{{"a"}, {nil}, {"c"}}, false)
		if err == nil {
			t.Fatal("expected an error")
		}
		res, err := d.Query(ctx, "SELECT COUNT(*) FROM items", nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Data[0][0] != int64(0) {
			t.Error("failed batch left partial rows")
		}
	})

	t.Run("replace on conflict", func(t *testing.T) {
		d := setup(t)
		if _, err := d.BatchInsert(ctx, "items", []string{"id", "v"}, [][]any{{1, "old"}}, false); err != nil {
			t.Fatal(err)
		}
		if _, err := d.BatchInsert(ctx, "items", []string{"id", "v"}, [][]any{{1, "new"}}, true); err != nil {
			t.Fatal(err)
		}
		res, err := d.Query(ctx, "SELECT v FROM items WHERE id = 1", nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Data[0][0] != "new" {
			t.Errorf("v = %#v, want \"new\"", res.Data[0][0])
		}
	})

	t.Run("invalid identifiers rejected", func(t *testing.T) {
		d := setup(t)
		if _, err := d.BatchInsert(ctx, "items; --", []string{"v"}, [][]any{{"a"}}, false); err == nil {
			t.Error("expected table name error")
		}
		if _, err := d.BatchInsert(ctx, "items", []string{"v]; --"}, [][]any{{"a"}}, false); err == nil {
			t.Error("expected column name error")
		}
	})

	t.Run("no columns rejected", func(t *testing.T) {
		d := setup(t)
		if _, err := d.BatchInsert(ctx, "items", nil, [][]any{{"a"}}, false); !errors.Is(err, ErrRowShapeMismatch) {
			t.Error("expected ErrRowShapeMismatch")
		}
	})
}

func TestExportCsv(t *testing.T) {
	ctx := context.Background()
	d, dir := newTestDao(t)

	if _, err := d.Query(ctx, "CREATE TABLE readings (id INTEGER PRIMARY KEY, label TEXT, value REAL, raw BLOB)", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := d.BatchInsert(ctx, "readings", []string{"label", "value", "raw"}, [][]any{
		{"alpha", 1.5, []byte{0xca, 0xfe}},
		{"beta", nil, nil},
	}, false); err != nil {
		t.Fatal(err)
	}

	t.Run("writes headers and marshaled cells", func(t *testing.T) {
		out := filepath.Join(dir, "out.csv")
		res, err := d.ExportCsv(ctx, "SELECT label, value, raw FROM readings ORDER BY id", out, true)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Success || res.RowsExported != 2 {
			t.Errorf("unexpected result %+v", res)
		}

		content, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(content)), "\n")
		if len(lines) != 3 {
			t.Fatalf("lines = %d, want 3: %q", len(lines), content)
		}
		if lines[0] != "label,value,raw" {
			t.Errorf("header = %q", lines[0])
		}
		if lines[1] != "alpha,1.5,cafe" {
			t.Errorf("row 1 = %q", lines[1])
		}
		if lines[2] != "beta,," {
			t.Errorf("row 2 = %q", lines[2])
		}
	})

	t.Run("headers can be omitted", func(t *testing.T) {
		out := filepath.Join(dir, "bare.csv")
		if _, err := d.ExportCsv(ctx, "SELECT label FROM readings ORDER BY id", out, false); err != nil {
			t.Fatal(err)
		}
		content, _ := os.ReadFile(out)
		if strings.Contains(string(content), "label") {
			t.Errorf("unexpected header in %q", content)
		}
	})

	t.Run("write statements cannot be exported", func(t *testing.T) {
		_, err := d.ExportCsv(ctx, "DELETE FROM readings", filepath.Join(dir, "x.csv"), true)
		if !errors.Is(err, ErrNotReadQuery) {
			t.Errorf("got %v, want ErrNotReadQuery", err)
		}
	})

	t.Run("path is sandboxed", func(t *testing.T) {
		_, err := d.ExportCsv(ctx, "SELECT 1", filepath.Join(dir, "..", "escape.csv"), true)
		if !errors.Is(err, ErrPathTraversal) {
			t.Errorf("got %v, want ErrPathTraversal", err)
		}
	})
}

func TestImportCsv(t *testing.T) {
	ctx := context.Background()
	d, dir := newTestDao(t)

	if _, err := d.Query(ctx, "CREATE TABLE people (name TEXT, age INTEGER)", nil); err != nil {
		t.Fatal(err)
	}

	t.Run("imports with header row", func(t *testing.T) {
		path := filepath.Join(dir, "people.csv")
		if err := os.WriteFile(path, []byte("name,age\nAlice,30\nBob,25\n"), 0600); err != nil {
			t.Fatal(err)
		}

		res, err := d.ImportCsv(ctx, "people", path, true, nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.RowsImported != 2 {
			t.Errorf("imported = %d, want 2", res.RowsImported)
		}

		sel, err := d.Query(ctx, "SELECT COUNT(*) FROM people", nil)
		if err != nil {
			t.Fatal(err)
		}
		if sel.Data[0][0] != int64(2) {
			t.Errorf("count = %#v, want 2", sel.Data[0][0])
		}
	})

	t.Run("imports with explicit columns", func(t *testing.T) {
		path := filepath.Join(dir, "bare.csv")
		if err := os.WriteFile(path, []byte("Carol,41\n"), 0600); err != nil {
			t.Fatal(err)
		}
		res, err := d.ImportCsv(ctx, "people", path, false, []string{"name", "age"})
		if err != nil {
			t.Fatal(err)
		}
		if res.RowsImported != 1 {
			t.Errorf("imported = %d, want 1", res.RowsImported)
		}
	})

	t.Run("missing file rejected", func(t *testing.T) {
		if _, err := d.ImportCsv(ctx, "people", filepath.Join(dir, "ghost.csv"), true, nil); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("no columns without headers rejected", func(t *testing.T) {
		path := filepath.Join(dir, "noheads.csv")
		if err := os.WriteFile(path, []byte("x,y\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := d.ImportCsv(ctx, "people", path, false, nil); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestBackup(t *testing.T) {
	ctx := context.Background()
	d, dir := newTestDao(t)

	if _, err := d.Query(ctx, "CREATE TABLE t (v TEXT)", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := d.BatchInsert(ctx, "t", []string{"v"}, [][]any{{"keep"}}, false); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "backup.db")
	res, err := d.Backup(ctx, dest)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.SizeBytes == 0 {
		t.Errorf("unexpected result %+v", res)
	}

	// The backup must be an openable database containing the data.
	box, err := NewSandbox(dir)
	if err != nil {
		t.Fatal(err)
	}
	restored := New(box, Options{})
	defer restored.Close()
	if _, err := restored.Connect(ctx, dest, false, false); err != nil {
		t.Fatal(err)
	}
	sel, err := restored.Query(ctx, "SELECT v FROM t", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Data) != 1 || sel.Data[0][0] != "keep" {
		t.Errorf("backup contents = %+v", sel.Data)
	}

	t.Run("overwrites an existing backup", func(t *testing.T) {
		if _, err := d.Backup(ctx, dest); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("rejects the live database as destination", func(t *testing.T) {
		if _, err := d.Backup(ctx, d.Path()); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("rejects non-database extension", func(t *testing.T) {
		_, err := d.Backup(ctx, filepath.Join(dir, "backup.csv"))
		if !errors.Is(err, ErrInvalidExtension) {
			t.Errorf("got %v, want ErrInvalidExtension", err)
		}
	})
}

func TestIntegrityCheck(t *testing.T) {
	d, _ := newTestDao(t)

	res, err := d.IntegrityCheck(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Ok {
		t.Errorf("fresh database failed integrity check: %v", res.Messages)
	}
}

func TestStats(t *testing.T) {
	d, _ := newTestDao(t)
	ctx := context.Background()

	if _, err := d.Query(ctx, "CREATE TABLE t (v TEXT)", nil); err != nil {
		t.Fatal(err)
	}

	s, err := d.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.PageCount == 0 || s.PageSize == 0 {
		t.Errorf("stats = %+v", s)
	}
	if s.TotalSize != s.PageCount*s.PageSize {
		t.Errorf("total size %d != %d * %d", s.TotalSize, s.PageCount, s.PageSize)
	}
	if s.JournalMode == "" || s.Encoding == "" {
		t.Errorf("stats = %+v", s)
	}
}
