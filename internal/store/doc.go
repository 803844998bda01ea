// Package store provides the local cache of the compose session using SQLite.
//
// # Contents
//
//   - Conversations and their messages, in transcript order
//   - Research card batches, keyed by conversation
//   - The promotion log of conversation identity transitions
//
// The server remains the source of truth. The cache lets history be shown
// when the server has none yet or cannot be reached.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Messages reference their conversation with ON UPDATE CASCADE, so renaming
// a conversation during identity promotion moves its messages with it.
//
// # Error Handling
//
//   - ErrNotFound: Requested entity does not exist
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests of callers, and
// NewSQLiteStore(filepath.Join(t.TempDir(), "test.db")) for real SQLite.
package store
