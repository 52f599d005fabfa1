// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// An optional rotating file sink (lumberjack) can be attached alongside the
// regular output paths, which is how long-running hubs keep their logs on
// disk without an external rotator.
//
// Components never create their own logger. They receive a *zap.Logger and
// name themselves:
//
//	logger := logging.NewDefault()
//	rlog := logger.Named("router")
//	rlog.Debug("no handlers", zap.String("topic", topic))
package logging
