//go:build !cgo_sqlite

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNativeDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"./data/nest.db", "./data/nest.db"},
		{"./data/nest.db?_journal_mode=WAL&_busy_timeout=5000",
			"./data/nest.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"},
		{"file.db?_journal_mode=WAL&cache=shared", "file.db?_pragma=journal_mode(WAL)&cache=shared"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nativeDSN(tt.in))
	}
}
