//go:build !cgo_sqlite

package main

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

// initDB opens the database with the pure Go driver. The go-sqlite3 style
// _journal_mode and _busy_timeout parameters are translated to _pragma form.
func initDB(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite", nativeDSN(dataSource))
}

func nativeDSN(dataSource string) string {
	path, query, found := strings.Cut(dataSource, "?")
	if !found {
		return dataSource
	}
	var params []string
	for _, param := range strings.Split(query, "&") {
		key, value, _ := strings.Cut(param, "=")
		switch key {
		case "_journal_mode":
			params = append(params, "_pragma=journal_mode("+value+")")
		case "_busy_timeout":
			params = append(params, "_pragma=busy_timeout("+value+")")
		default:
			params = append(params, param)
		}
	}
	return path + "?" + strings.Join(params, "&")
}
