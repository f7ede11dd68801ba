package metrics

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeMetrics observes the Go runtime on every collection.
type RuntimeMetrics struct {
	started time.Time
}

func NewRuntimeMetrics(_ context.Context, meter metric.Meter) (*RuntimeMetrics, error) {
	rm := &RuntimeMetrics{started: time.Now()}

	goroutines, err := meter.Int64ObservableGauge("go.goroutine.count",
		metric.WithDescription("Live goroutines"), metric.WithUnit("{goroutine}"))
	if err != nil {
		return nil, err
	}
	heapBytes, err := meter.Int64ObservableGauge("go.memory.heap.alloc",
		metric.WithDescription("Bytes of allocated heap objects"), metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	heapObjects, err := meter.Int64ObservableGauge("go.memory.heap.objects",
		metric.WithDescription("Allocated heap objects"), metric.WithUnit("{object}"))
	if err != nil {
		return nil, err
	}
	gcCycles, err := meter.Int64ObservableCounter("go.gc.cycles",
		metric.WithDescription("Completed GC cycles"), metric.WithUnit("{cycle}"))
	if err != nil {
		return nil, err
	}
	gcPause, err := meter.Float64ObservableCounter("go.gc.pause.total",
		metric.WithDescription("Cumulative stop-the-world GC pause"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	uptime, err := meter.Float64ObservableGauge("process.uptime",
		metric.WithDescription("Seconds since the process started"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)

			o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))
			o.ObserveInt64(heapBytes, int64(ms.HeapAlloc))
			o.ObserveInt64(heapObjects, int64(ms.HeapObjects))
			o.ObserveInt64(gcCycles, int64(ms.NumGC))
			o.ObserveFloat64(gcPause, time.Duration(ms.PauseTotalNs).Seconds())
			o.ObserveFloat64(uptime, time.Since(rm.started).Seconds())
			return nil
		},
		goroutines, heapBytes, heapObjects, gcCycles, gcPause, uptime,
	)
	if err != nil {
		return nil, err
	}

	return rm, nil
}
