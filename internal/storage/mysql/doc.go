// Package mysql stores strategy definitions in MySQL. It owns the schema
// migrations for the strategies table and keeps graph snapshots as JSON
// documents alongside the relational metadata.
package mysql
