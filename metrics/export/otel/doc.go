// Package otel mirrors finauth metrics into an OpenTelemetry meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and,
// for each latency histogram, one Int64ObservableGauge per cumulative bucket
// plus a sample count. A single callback takes one snapshot per collection.
// The caller owns the MeterProvider.
package otel
