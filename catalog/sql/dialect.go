// Package sql implements catalog.Adapter against a real SQL database,
// compiling catalog.Query predicate trees to dialect-aware SQL the way
// internal/ucast.UCASTNode.AsSQL compiles a predicate tree via
// github.com/huandu/go-sqlbuilder, and selecting the sqlbuilder.Flavor from
// a dialect string the way ucast.dialectToFlavor does.
package sql

import (
	"github.com/huandu/go-sqlbuilder"
)

// Dialect names the four backends this adapter supports, mirroring
// spec.md's catalog adapter being "storage-agnostic in principle".
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
	DialectMSSQL    = "sqlserver"
)

// dialectToFlavor maps a dialect string to the sqlbuilder.Flavor used to
// render it, defaulting to SQLite the way ucast.go's dialectToFlavor does.
func dialectToFlavor(dialect string) sqlbuilder.Flavor {
	switch dialect {
	case "mysql":
		return sqlbuilder.MySQL
	case "sqlite":
		return sqlbuilder.SQLite
	case "postgres", "postgresql":
		return sqlbuilder.PostgreSQL
	case "sqlserver", "mssql":
		return sqlbuilder.SQLServer
	default:
		return sqlbuilder.SQLite
	}
}
