package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/progress"
)

// LogSink writes one debug line per resource; captcha hits are logged at
// info level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("worker", evt.Worker),
			zap.String("uri", evt.URI),
			zap.String("cache_status", string(evt.CacheStatus)),
			zap.Int("http_status", evt.HTTPStatus),
			zap.Int64("bytes", evt.Bytes),
			zap.Duration("dur", evt.Dur),
		}
		switch {
		case evt.Stage == progress.StageResourceError:
			s.logger.Debug("resource failed", append(fields, zap.String("error", evt.Note))...)
		case evt.Captcha:
			s.logger.Info("captcha marker found", fields...)
		default:
			s.logger.Debug("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
