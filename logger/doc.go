// Package logger provides structured logging for dagflow using zerolog.
//
// It supports JSON and console output, level configuration and
// component-scoped loggers. Engine, runner, simulator and store each log
// through a named logger:
//
//	log := logger.Get("engine")
//	log.Info("batch started", logger.Fields(logger.FieldBatch, 1, logger.FieldNodes, ids))
package logger
