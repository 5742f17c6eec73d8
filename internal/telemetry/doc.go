// Package telemetry wires OpenTelemetry tracing and metrics for ragstore.
//
// Spans and OTLP metrics are exported to a collector over gRPC or
// HTTP/protobuf. Prometheus counters for the HTTP /metrics endpoint live in
// the packages that own them; this package only handles OTLP export.
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  service_name: "ragstore"
//	  sample_rate: 1.0
//
// # Error Handling
//
// Exporter failures do not stop the process. The instance reports itself as
// degraded and the global no-op providers stay in place.
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	tt.InstallGlobal(t)
//	// exercise code that calls otel.Tracer(...)
//	tt.AssertSpanExists(t, "Manager.CreateOrUpdate")
package telemetry
