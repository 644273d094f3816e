package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/rfol/finauth"
	"github.com/rfol/finauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() finauth.MetricsSnapshot
	AuditDropped() uint64
}

type counterBinding struct {
	id         finauth.MetricID
	instrument metric.Int64ObservableCounter
}

// latencyBinding publishes one cumulative gauge per bucket plus a total.
type latencyBinding struct {
	id      finauth.MetricID
	buckets [finauth.HistBucketCount]metric.Int64ObservableGauge
	total   metric.Int64ObservableGauge
}

// Exporter mirrors engine counters into OpenTelemetry observable
// instruments. Values are read once per collection cycle.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []counterBinding
	latencies    []latencyBinding
	auditDropped metric.Int64ObservableCounter
}

func NewExporter(meter metric.Meter, engine *finauth.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:    source,
		counters:  make([]counterBinding, 0, len(internaldefs.CounterDefs)),
		latencies: make([]latencyBinding, 0, len(internaldefs.HistogramDefs)),
	}
	observables := make([]metric.Observable, 0,
		len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*(finauth.HistBucketCount+1)+1)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterBinding{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		b := latencyBinding{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name,
				metric.WithDescription("Cumulative latency bucket count."),
				metric.WithUnit("{sample}"))
			if err != nil {
				return nil, fmt.Errorf("bucket gauge %s: %w", name, err)
			}
			b.buckets[i] = ins
			observables = append(observables, ins)
		}
		total, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help),
			metric.WithUnit("{sample}"))
		if err != nil {
			return nil, fmt.Errorf("count gauge %s: %w", def.Name, err)
		}
		b.total = total
		observables = append(observables, total)
		e.latencies = append(e.latencies, b)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snap.Counters[c.id]))
	}
	for _, b := range e.latencies {
		raw, ok := snap.Histograms[b.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, v := range cumulative {
			o.ObserveInt64(b.buckets[i], int64(v))
		}
		o.ObserveInt64(b.total, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. The meter's instruments remain.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
