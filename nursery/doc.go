// Package nursery provides structured concurrency primitives for Go: a
// cancel-scope tree with deadlines and shields, and task groups (nurseries)
// that guarantee every spawned child terminates before the group's block
// returns. Cancellation is delivered cooperatively, at checkpoints, rather
// than by directly killing goroutines.
package nursery
