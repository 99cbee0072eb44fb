// Package history records past casting sessions in a local SQLite
// database so they can be listed later.
package history
