// Package database provides connection pool management for PostgreSQL.
//
// The pool backs the credential store: exchange credentials (family, approval
// keys, endpoints) are read from Postgres when database.enabled is set.
package database
