// Package stats defines the observer interface through which the proxy core
// reports connection lifecycle and error events to a host application.
//
// The core itself never aggregates or displays statistics; it only calls
// Observer methods. Counters provides a default, dependency-free
// implementation suitable for a standalone binary; a host application (a UI,
// a metrics exporter) is expected to supply its own.
package stats
