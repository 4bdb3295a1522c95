// Package txn coordinates CRUD operations on a single database connection.
//
// A Transaction owns one dedicated connection for its lifetime and moves
// through the states Idle, InTransaction, Committed and RolledBack:
//
//	Idle -> InTransaction -> Committed | RolledBack
//
// Operations may also run outside a transaction; they leave the state Idle.
//
// # Rollback on failure
//
// Any failure inside ExecuteOperation (dispatch, execution or the result
// handler) issues the dialect's ROLLBACK before the original error is
// returned. A failing rollback on that path is logged at Warn and never
// replaces the original error.
//
// # Concurrency
//
// A Transaction is not safe for concurrent use. Every call blocks until the
// backend answers; callers sharing one Transaction must serialize access.
package txn
