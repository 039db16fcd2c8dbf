// Package api provides the HTTP handlers for the scheduler. Reads go
// straight to the scheduler service; every mutation is funneled
// through the task executor so at most one write is in flight.
package api
