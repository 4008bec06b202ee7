// Package runner provides the production dag.TaskRunner.
//
// Shell executes run tasks through the process package (sh -c by default)
// and uses tasks through an action Registry. The task environment is the
// graph defaults, then the node env, then the node's secrets resolved from
// the process environment. Gates are evaluated with the expr package against
// a snapshot of the run state.
//
//	r := runner.New(runner.WithWorkDir("."))
//	res, err := dag.NewEngine().Execute(ctx, g, r)
package runner
