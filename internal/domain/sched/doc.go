// Package sched implements the pure interval algorithm: the state
// machine that maps a card's scheduling state and a grade to the next
// (type, queue, due, interval, factor) tuple.
//
// The package is deliberately free of I/O and side effects. Callers
// pass in the card by value together with the effective deck
// configuration and the day timing; they get back the updated card and
// a revlog record. Persistence, queue bookkeeping, counts, and undo
// all live in the scheduler service.
package sched
