// Package component manages the lifecycle of long-running dagflow services.
//
// The schedule daemon registers the store and the cron scheduler here so
// they start in dependency order and stop in reverse. Anything with a
// start/stop pair can take part through Hooks.
package component
