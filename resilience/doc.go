// Package resilience provides the fault-tolerance primitives the engine
// applies around node execution.
//
//   - Retry: repeats a failed attempt with exponential backoff, optionally
//     bounding each attempt with its own deadline
//   - Bulkhead: caps how many nodes of a batch run at the same time
//
// Example:
//
//	err := resilience.RetryFunc(ctx, cfg, func(ctx context.Context, attempt int) error {
//		return runner.RunTask(ctx, task, state)
//	})
package resilience
