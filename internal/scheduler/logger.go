package scheduler

import (
	"github.com/rs/zerolog"
)

// zerologCronLogger adapts zerolog to cron.Logger
type zerologCronLogger struct {
	logger zerolog.Logger
}

func (l zerologCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l zerologCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
