// Package telemetry traces planning passes and shipment execution with
// OpenTelemetry.
//
// Spans nest as
//
//	plan (destination, mode, vessels, deferred units)
//	execute (plan id, planned shipments, final state)
//	└── shipment (index, source, destination, vessels, attempts, loads)
//	    └── events: retry, wait_vessels
//
// InitProvider installs an OTLP exporter over gRPC or HTTP. Without it the
// global tracer is a no-op and spans cost nothing.
package telemetry
