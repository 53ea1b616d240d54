// Package ledger tracks which feed posts have already been processed so a
// rerun skips them. It is backed by a SQLite database with one table per
// collection plus a shared files table, and batches writes into periodic
// transaction commits.
package ledger
