// Package postgres is the PostgreSQL-backed storage.Storage implementation
// (§6.2): connection pooling, goose migrations, and a squirrel+scany
// repository over the issues/flows/knowledge/pond/schedules/state_document
// tables created by migrations/00001_init.sql.
package postgres
