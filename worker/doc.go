/*
Package worker provides a bounded, sharded goroutine pool with per-task
completion tracking. Failures are logged, counted and handed to an optional hook
instead of being lost.
*/
package worker
