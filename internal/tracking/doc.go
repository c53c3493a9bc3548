// Package tracking persists per-file processing state in SQLite so repeated
// scans can skip notebooks whose content has not changed and the status
// command can report what happened to each file.
package tracking
