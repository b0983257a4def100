// Package postgres implements the store interfaces using PostgreSQL.
//
// The task claim and the credit debit are both single conditional
// statements, so the stores are safe under concurrent schedulers and
// concurrent admissions without any application-level locking.
package postgres
