package daos

// Declared column types reported by the SQLite drivers.
const (
	ColTypeText    = "TEXT"
	ColTypeInteger = "INTEGER"
	ColTypeReal    = "REAL"
	ColTypeBlob    = "BLOB"
)

// Driver names accepted by Connect.
const (
	DriverSQLite = "sqlite3"
	DriverLibsql = "libsql"
)
