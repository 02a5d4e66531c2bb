// Package store persists the local-to-remote track mapping, the crate/playlist
// mirrors, and the pending crate additions in SQLite.
//
// Every exported method is a single statement or a single short transaction;
// nothing holds a transaction across calls. Multi-step workflows in the
// reconciliation engine therefore see committed state after every step and
// must be written to converge when re-run after an interruption.
//
// Table and column names match databases created by earlier releases of the
// sync tool, and the schema only ever grows: new nullable columns are added
// when missing and SQL migrations are recorded in schema_migrations.
package store
