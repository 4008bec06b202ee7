package events

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/kbukum/dagflow/logger"
)

// loggerAdapter routes watermill logs to a dagflow logger. Trace is logged
// at debug level.
type loggerAdapter struct {
	log *logger.Logger
}

// NewLoggerAdapter wraps l as a watermill.LoggerAdapter.
func NewLoggerAdapter(l *logger.Logger) watermill.LoggerAdapter {
	return &loggerAdapter{log: l}
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	merged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	if err != nil {
		merged = logger.MergeWithError(merged, err)
	}
	a.log.Error(msg, merged)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(msg, fields)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fields)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fields)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{log: a.log.WithFields(fields)}
}
