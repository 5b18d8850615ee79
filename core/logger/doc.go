// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance that supports different environments (development vs production)
// and two ways of carrying a scoped logger around:
//
//   - WithRayID attaches the request id set by the rayid middleware to log entries of a Fiber handler.
//   - WithContext and FromContext carry a per-item logger (with key and direction fields) through
//     the transfer pipelines, so that every stage of one object logs with the same fields.
//
// # Configuration
//
// The package supports configuration for:
//   - Level: debug, info, warn, error
//   - Encoding: json (production) or console (development)
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info"})
//	ctx = logger.WithContext(ctx, log.With(zap.String("key", key)))
//	logger.FromContext(ctx).Info("relayed")
package logger
