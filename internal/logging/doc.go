// Package logging builds the zap loggers used by devaudit.
//
// A logger writes JSON (or console) lines to stdout and, when telemetry is
// enabled, mirrors them to the OpenTelemetry log pipeline through otelzap.
// String values pass through the prompt redactor from package secrets, so
// an auditor's e-mail or a pasted API key never reaches the log sink.
// Fields named like credentials are replaced outright.
//
// Entries below error level are sampled per tick; errors are always kept.
//
// Correlation data travels in the context:
//
//	ctx = logging.WithOwner(ctx, owner)
//	ctx = logging.WithRecordID(ctx, id)
//	logging.For(ctx, logger).Info("build started")
//
// For(ctx, l) adds trace, request, owner, record and job ids when present.
package logging
