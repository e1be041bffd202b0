// Package sqlite keeps the catalog in a single SQLite file. The store is
// only built where modernc.org/sqlite runs.
package sqlite
