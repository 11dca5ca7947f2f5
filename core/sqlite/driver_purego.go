//go:build !cgo_sqlite

package sqlite

import (
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	driverName    = "sqlite"
	driverType    = "purego"
	driverPackage = "modernc.org/sqlite"
)

var pragmaParams = []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}
