// Package dagtest provides test doubles for the dag package: a recording
// TaskRunner with scripted gate outcomes and failures, and a fluent graph
// builder.
package dagtest
