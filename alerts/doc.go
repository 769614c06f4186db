// Package alerts reports critical events as short code-plus-summary
// messages.
//
// BROKEN escalations and lock timeouts become an Alert whose String form
// is at most two lines:
//
//	[alice] BROKEN: task transport broken
//	1 of 3 shipments completed, shipment 2 failed
//
// Reporters decide where alerts go. BusReporter publishes JSON on
// "alerts.<account>" so an external forwarder can pick them up; LogReporter
// writes them to the log; Multi fans out to several.
package alerts
