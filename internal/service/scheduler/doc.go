// Package scheduler is the queue manager built on top of the pure
// state machine in internal/domain/sched. It owns deck selection, the
// per-session card queues and counts, daily limits and their
// propagation through the deck tree, filtered decks, bury and suspend,
// and the undo stack.
//
// A Service keeps ids in its queues, never card objects; the store
// stays the single source of truth for card state. All mutations run
// inside a transaction supplied by the TxRunner, and the HTTP layer
// serializes them through the task executor.
package scheduler
