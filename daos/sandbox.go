package daos

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Purpose identifies what a validated path will be used for. Database and
// backup files must carry a SQLite extension; exports and imports must be
// CSV files.
type Purpose int

const (
	PurposeDatabase Purpose = iota
	PurposeBackup
	PurposeExport
	PurposeImport
)

// Extensions accepted for SQLite database and backup files.
var dbExtensions = map[string]bool{
	".db":      true,
	".sqlite":  true,
	".sqlite3": true,
}

// PathInfo is a validated, canonicalized absolute path.
type PathInfo struct {
	Path    string // canonical absolute path
	Existed bool   // whether the file existed when validated
}

// Sandbox confines database, backup, and export paths to one root directory.
// It is the sole defense against directory escape and must run before any
// filesystem open or create call.
type Sandbox struct {
	Root string
}

// NewSandbox canonicalizes root and returns a sandbox rooted there.
func NewSandbox(root string) (Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Sandbox{}, fmt.Errorf("resolving sandbox root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return Sandbox{}, fmt.Errorf("resolving sandbox root: %w", err)
	}
	return Sandbox{Root: resolved}, nil
}

// Validate canonicalizes raw (resolving "."/".." and symlinks), confirms the
// result lies inside the sandbox root, and enforces the extension rules for
// the given purpose.
func (s Sandbox) Validate(raw string, purpose Purpose) (PathInfo, error) {
	if raw == "" {
		return PathInfo{}, fmt.Errorf("%w: empty path", ErrPathTraversal)
	}

	abs, err := filepath.Abs(raw)
	if err != nil {
		return PathInfo{}, fmt.Errorf("resolving path %q: %w", raw, err)
	}

	info := PathInfo{}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		info.Existed = true
	} else if os.IsNotExist(err) {
		// The file may not exist yet. Resolve the parent instead so a
		// symlinked directory cannot smuggle the path outside the root.
		parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
		if err != nil {
			return PathInfo{}, fmt.Errorf("%w: %s", ErrNoParentDir, filepath.Dir(abs))
		}
		resolved = filepath.Join(parent, filepath.Base(abs))
	} else {
		return PathInfo{}, fmt.Errorf("resolving path %q: %w", raw, err)
	}
	info.Path = resolved

	if !within(s.Root, resolved) {
		return PathInfo{}, fmt.Errorf("%w: %s", ErrPathTraversal, raw)
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	switch purpose {
	case PurposeDatabase, PurposeBackup:
		if !dbExtensions[ext] {
			return PathInfo{}, fmt.Errorf("%w: %q is not a database file", ErrInvalidExtension, ext)
		}
	case PurposeExport, PurposeImport:
		if ext != ".csv" {
			return PathInfo{}, fmt.Errorf("%w: %q is not a CSV file", ErrInvalidExtension, ext)
		}
	}

	if purpose == PurposeImport && !info.Existed {
		return PathInfo{}, fmt.Errorf("import file not found: %s", raw)
	}

	return info, nil
}

// within reports whether path is root or lies under it.
func within(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
