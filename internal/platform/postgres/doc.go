// Package postgres implements the store interfaces on PostgreSQL.
//
// The stores accept a store.DBTX so the same code runs against a
// connection pool or an open transaction; WithTx rebinds a store to a
// transaction without copying configuration.
package postgres
