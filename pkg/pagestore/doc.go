/*
Package pagestore keeps named input trees ("pages") for the nest engine in a
SQLite database, together with per-page render statistics.

The package only speaks database/sql; the caller picks the driver. Trees are
stored as JSON and come back as nest.Value.
*/
package pagestore
