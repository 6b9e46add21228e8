// Package telemetry installs the OpenTelemetry providers of devauditd.
//
// Traces, metrics and logs are exported over OTLP (gRPC or HTTP) to a
// collector. New registers the trace and meter providers globally, so the
// analysis, retrieval, generation and embeddings packages only need
// otel.Tracer and otel.Meter. The log provider is handed to the logging
// package, which mirrors zap entries through otelzap.
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc            # or http/protobuf
//	  sample_rate: 1.0
//	  metrics_interval: "15s"   # 0 turns metrics off
//	  logs: true
//
// A provider that cannot be created does not stop the daemon. The others
// keep running and Health reports what failed.
//
// Recorder keeps spans and metrics in memory for tests.
package telemetry
