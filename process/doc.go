// Package process runs the shell commands behind `run` tasks.
//
// Commands run in their own process group. Cancelling the context sends
// SIGTERM to the group and escalates to SIGKILL after the grace period.
package process
