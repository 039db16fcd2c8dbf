// Package store defines the persistence interfaces the scheduler
// depends on: cards, decks, deck configs, the review log, and the
// collection root, plus the transaction helper that gives every
// scheduler mutation all-or-nothing semantics.
//
// Implementations live in internal/platform/postgres (production) and
// internal/store/memstore (tests and lightweight embedding).
package store
