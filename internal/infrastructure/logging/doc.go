// Package logging provides structured logging using uber/zap.
//
// Production builds log JSON for machine parsing; development builds
// (LOG_DEV=true) log colored console lines. Components take a *zap.Logger
// and name themselves:
//
//	logger := logging.NewDefault()
//	poolLog := logger.Named("pool")
//	poolLog.Info("session ready", zap.String("session_id", id))
package logging
