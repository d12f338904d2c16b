// Package ingest translates OTLP metric payloads into storage writes.
//
// Every attribute present on an OTLP data point — resource attributes and
// point attributes alike — appears on the resulting label set, with two
// exceptions: attributes with an empty key or an empty value are dropped,
// because a label set holds no empty names or values, and an attribute named
// like a label the translation sets itself (__name__, le, quantile) is
// replaced by that label. Histograms and summaries expand into the
// conventional component series (_bucket/_sum/_count, quantile).
package ingest

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/pmetric/pmetricotlp"

	"github.com/arloliu/tachyon/block"
	"github.com/arloliu/tachyon/format"
	"github.com/arloliu/tachyon/labels"
)

// Appender is the slice of the storage engine the ingest path needs.
type Appender interface {
	WriteTyped(ctx context.Context, lset labels.Labels, metricType format.MetricType, samples []block.Sample) error
}

// Server implements the OTLP gRPC metrics service over an Appender.
type Server struct {
	pmetricotlp.UnimplementedGRPCServer

	appender Appender
	logger   log.Logger
}

var _ pmetricotlp.GRPCServer = (*Server)(nil)

// NewServer creates an OTLP ingest server writing into appender.
func NewServer(appender Appender, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Server{appender: appender, logger: logger}
}

// Export receives one OTLP export request and writes every data point it can
// translate. Metrics without a name or of an unsupported type write nothing
// and are counted as skipped in the debug log; point timestamps are not
// checked. A label or storage failure aborts the request.
func (s *Server) Export(ctx context.Context, req pmetricotlp.ExportRequest) (pmetricotlp.ExportResponse, error) {
	md := req.Metrics()

	written, skipped := 0, 0

	rms := md.ResourceMetrics()
	for i := 0; i < rms.Len(); i++ {
		rm := rms.At(i)
		resource := rm.Resource()

		sms := rm.ScopeMetrics()
		for j := 0; j < sms.Len(); j++ {
			metrics := sms.At(j).Metrics()
			for k := 0; k < metrics.Len(); k++ {
				n, err := s.writeMetric(ctx, resource, metrics.At(k))
				if err != nil {
					return pmetricotlp.NewExportResponse(), err
				}
				if n == 0 {
					skipped++
				}
				written += n
			}
		}
	}

	level.Debug(s.logger).Log("msg", "otlp export", "samples", written, "skipped_metrics", skipped)

	return pmetricotlp.NewExportResponse(), nil
}

func (s *Server) writeMetric(ctx context.Context, resource pcommon.Resource, metric pmetric.Metric) (int, error) {
	name := metric.Name()
	if name == "" {
		return 0, nil
	}

	switch metric.Type() {
	case pmetric.MetricTypeGauge:
		return s.writeNumberPoints(ctx, resource, name, format.MetricGauge, metric.Gauge().DataPoints())
	case pmetric.MetricTypeSum:
		metricType := format.MetricCounter
		if !metric.Sum().IsMonotonic() {
			metricType = format.MetricGauge
		}

		return s.writeNumberPoints(ctx, resource, name, metricType, metric.Sum().DataPoints())
	case pmetric.MetricTypeHistogram:
		return s.writeHistogramPoints(ctx, resource, name, metric.Histogram().DataPoints())
	case pmetric.MetricTypeSummary:
		return s.writeSummaryPoints(ctx, resource, name, metric.Summary().DataPoints())
	default:
		level.Debug(s.logger).Log("msg", "unsupported otlp metric type", "metric", name, "type", metric.Type())
		return 0, nil
	}
}

func (s *Server) writeNumberPoints(ctx context.Context, resource pcommon.Resource, name string, metricType format.MetricType, dps pmetric.NumberDataPointSlice) (int, error) {
	written := 0
	for i := 0; i < dps.Len(); i++ {
		dp := dps.At(i)

		lset, err := buildLabels(resource, dp.Attributes(), name)
		if err != nil {
			return written, err
		}

		var value float64
		switch dp.ValueType() {
		case pmetric.NumberDataPointValueTypeDouble:
			value = dp.DoubleValue()
		case pmetric.NumberDataPointValueTypeInt:
			value = float64(dp.IntValue())
		default:
			continue
		}

		sample := block.Sample{Timestamp: convertTimestamp(dp.Timestamp()), Value: value}
		if err := s.appender.WriteTyped(ctx, lset, metricType, []block.Sample{sample}); err != nil {
			return written, err
		}
		written++
	}

	return written, nil
}

func (s *Server) writeHistogramPoints(ctx context.Context, resource pcommon.Resource, name string, dps pmetric.HistogramDataPointSlice) (int, error) {
	written := 0
	for i := 0; i < dps.Len(); i++ {
		dp := dps.At(i)
		ts := convertTimestamp(dp.Timestamp())

		write := func(suffix string, extra []labels.Label, value float64) error {
			lset, err := buildLabels(resource, dp.Attributes(), name+suffix, extra...)
			if err != nil {
				return err
			}

			sample := block.Sample{Timestamp: ts, Value: value}
			if err := s.appender.WriteTyped(ctx, lset, format.MetricHistogram, []block.Sample{sample}); err != nil {
				return err
			}
			written++

			return nil
		}

		if dp.HasSum() {
			if err := write("_sum", nil, dp.Sum()); err != nil {
				return written, err
			}
		}
		if err := write("_count", nil, float64(dp.Count())); err != nil {
			return written, err
		}

		// Cumulative buckets with an explicit +Inf terminal bucket.
		bounds := dp.ExplicitBounds()
		counts := dp.BucketCounts()
		cumulative := uint64(0)
		for b := 0; b < counts.Len(); b++ {
			cumulative += counts.At(b)

			le := "+Inf"
			if b < bounds.Len() {
				le = formatBound(bounds.At(b))
			}
			extra := []labels.Label{{Name: "le", Value: le}}
			if err := write("_bucket", extra, float64(cumulative)); err != nil {
				return written, err
			}
		}
	}

	return written, nil
}

func (s *Server) writeSummaryPoints(ctx context.Context, resource pcommon.Resource, name string, dps pmetric.SummaryDataPointSlice) (int, error) {
	written := 0
	for i := 0; i < dps.Len(); i++ {
		dp := dps.At(i)
		ts := convertTimestamp(dp.Timestamp())

		write := func(suffix string, extra []labels.Label, value float64) error {
			lset, err := buildLabels(resource, dp.Attributes(), name+suffix, extra...)
			if err != nil {
				return err
			}

			sample := block.Sample{Timestamp: ts, Value: value}
			if err := s.appender.WriteTyped(ctx, lset, format.MetricSummary, []block.Sample{sample}); err != nil {
				return err
			}
			written++

			return nil
		}

		if err := write("_sum", nil, dp.Sum()); err != nil {
			return written, err
		}
		if err := write("_count", nil, float64(dp.Count())); err != nil {
			return written, err
		}

		qs := dp.QuantileValues()
		for q := 0; q < qs.Len(); q++ {
			qv := qs.At(q)
			extra := []labels.Label{{Name: "quantile", Value: formatBound(qv.Quantile())}}
			if err := write("", extra, qv.Value()); err != nil {
				return written, err
			}
		}
	}

	return written, nil
}

// buildLabels assembles the label set for one data point: the metric name,
// every resource attribute, every point attribute, and any extras. Later
// sources win on name clashes: point attributes over resource attributes,
// extras over both, and the metric name over everything. Attributes with an
// empty key or value are dropped.
func buildLabels(resource pcommon.Resource, attrs pcommon.Map, name string, extras ...labels.Label) (labels.Labels, error) {
	var lset labels.Labels
	var err error

	// A label with an empty value is indistinguishable from an absent label,
	// so empty-valued attributes are dropped rather than rejected.
	resource.Attributes().Range(func(key string, value pcommon.Value) bool {
		v := value.AsString()
		if key == "" || v == "" {
			return true
		}
		err = lset.Set(key, v)

		return err == nil
	})
	if err != nil {
		return labels.Labels{}, fmt.Errorf("resource attribute: %w", err)
	}

	attrs.Range(func(key string, value pcommon.Value) bool {
		v := value.AsString()
		if key == "" || v == "" {
			return true
		}
		err = lset.Set(key, v)

		return err == nil
	})
	if err != nil {
		return labels.Labels{}, fmt.Errorf("data point attribute: %w", err)
	}

	for _, l := range extras {
		if err := lset.Set(l.Name, l.Value); err != nil {
			return labels.Labels{}, err
		}
	}

	if err := lset.Set(labels.MetricName, name); err != nil {
		return labels.Labels{}, err
	}

	return lset, nil
}

// convertTimestamp converts an OTLP nanosecond timestamp to milliseconds.
func convertTimestamp(ts pcommon.Timestamp) int64 {
	return int64(ts) / 1_000_000 //nolint:gosec
}

// formatBound renders a bucket bound or quantile without trailing zeros.
func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
