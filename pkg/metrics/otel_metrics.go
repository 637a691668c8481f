package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 准入相关指标
	AdmissionsTotal    metric.Int64Counter
	AdmissionDuration  metric.Float64Histogram
	NotifyFailureTotal metric.Int64Counter

	// 事件消费相关指标
	EventsConsumedTotal metric.Int64Counter
}

var (
	// 全局指标实例
	metrics *OTelMetrics
	// meter 用于创建指标
	meter = otel.Meter("attendgate")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	m := &OTelMetrics{}

	m.AdmissionsTotal, err = meter.Int64Counter(
		"attendance_admissions_total",
		metric.WithDescription("Total number of attendance admission decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return err
	}

	m.AdmissionDuration, err = meter.Float64Histogram(
		"attendance_admission_duration_seconds",
		metric.WithDescription("Time spent deciding an attendance attempt in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.NotifyFailureTotal, err = meter.Int64Counter(
		"attendance_notify_failures_total",
		metric.WithDescription("Total number of attendance events that failed to publish"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	m.EventsConsumedTotal, err = meter.Int64Counter(
		"attendance_events_consumed_total",
		metric.WithDescription("Total number of attendance events handled by the worker"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例，未初始化时为 nil
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordAdmission 记录一次准入结果，decision 为 ADMITTED / REJECTED / ERROR
func RecordAdmission(ctx context.Context, direction, decision, reason string, seconds float64) {
	m := GetMetrics()
	if m == nil {
		return
	}

	m.AdmissionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", decision),
		attribute.String("reason", reason),
		attribute.String("type", direction),
	))
	m.AdmissionDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("decision", decision),
		attribute.String("type", direction),
	))
}

// RecordNotifyFailure 记录事件发布失败
func RecordNotifyFailure(ctx context.Context, eventType string) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.NotifyFailureTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

// RecordEventConsumed 记录 worker 处理事件，status 为 delivered / skipped / failed
func RecordEventConsumed(ctx context.Context, eventType, status string) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.EventsConsumedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("status", status),
	))
}
