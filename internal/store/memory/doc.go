// Package memory provides in-memory store implementations with the same
// semantics as the Postgres stores. They back the test suites and local
// runs that have no database available.
package memory
