// Package sqlite opens SQLite databases through one of two drivers chosen at
// build time.
//
// Build modes:
//   - Default: pure Go modernc.org/sqlite, no CGO required.
//   - With -tags cgo_sqlite (CGO_ENABLED=1): mattn/go-sqlite3.
//
// Use Open instead of sql.Open so the right driver name is used.
package sqlite

import (
	"database/sql"
	"strings"
)

// DriverName returns the database/sql driver name in use.
func DriverName() string {
	return driverName
}

// DriverType returns "cgo" for mattn/go-sqlite3 and "purego" for
// modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// IsCGO returns true if the CGO implementation is being used.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens a SQLite database file with foreign keys on and a busy timeout,
// so concurrent readers and a writer in one process do not fail fast.
func Open(path string) (*sql.DB, error) {
	return sql.Open(driverName, withPragmas(path, false))
}

// OpenReadOnly opens a SQLite database in read-only mode.
func OpenReadOnly(path string) (*sql.DB, error) {
	return sql.Open(driverName, withPragmas(path, true))
}

func withPragmas(path string, readOnly bool) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	var params []string
	if readOnly {
		params = append(params, "mode=ro")
	}
	params = append(params, pragmaParams...)
	return "file:" + path + "?" + strings.Join(params, "&")
}

// Info contains information about the SQLite driver configuration.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns information about the current SQLite configuration.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
