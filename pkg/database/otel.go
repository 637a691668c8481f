package database

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var (
	// 数据库相关指标，未初始化时不记录
	dbQueriesTotal  metric.Int64Counter
	dbQueryDuration metric.Float64Histogram

	sensitiveSQL = regexp.MustCompile(`(password|token|secret)\s*=\s*'[^']*'`)
)

const (
	spanKey  = "otel:span"
	startKey = "otel:start_time"
)

// InitDatabaseMetrics 初始化数据库指标
func InitDatabaseMetrics(meter metric.Meter) error {
	var err error

	dbQueriesTotal, err = meter.Int64Counter(
		"db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return err
	}

	dbQueryDuration, err = meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	return err
}

// OTELPlugin GORM OpenTelemetry 插件
type OTELPlugin struct {
	tracer trace.Tracer
	config PluginConfig
}

// PluginConfig 插件配置
type PluginConfig struct {
	ServiceName  string
	DBSystem     attribute.KeyValue
	MaxSQLLength int
}

// DefaultPluginConfig 默认插件配置
func DefaultPluginConfig() PluginConfig {
	return PluginConfig{
		ServiceName:  "attendgate",
		DBSystem:     semconv.DBSystemPostgreSQL,
		MaxSQLLength: 500,
	}
}

// NewOTELPlugin 创建插件实例
func NewOTELPlugin(config PluginConfig) *OTELPlugin {
	if config.ServiceName == "" {
		config.ServiceName = "attendgate"
	}
	if !config.DBSystem.Valid() {
		config.DBSystem = semconv.DBSystemPostgreSQL
	}
	if config.MaxSQLLength <= 0 {
		config.MaxSQLLength = 500
	}

	return &OTELPlugin{
		tracer: otel.Tracer(config.ServiceName + ".gorm"),
		config: config,
	}
}

// Name 实现 gorm.Plugin 接口
func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 注册回调
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	return errors.Join(
		cb.Query().Before("gorm:query").Register("otel:before_query", p.beforeCallback),
		cb.Query().After("gorm:query").Register("otel:after_query", p.afterCallback),
		cb.Create().Before("gorm:create").Register("otel:before_create", p.beforeCallback),
		cb.Create().After("gorm:create").Register("otel:after_create", p.afterCallback),
		cb.Update().Before("gorm:update").Register("otel:before_update", p.beforeCallback),
		cb.Update().After("gorm:update").Register("otel:after_update", p.afterCallback),
		cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.beforeCallback),
		cb.Delete().After("gorm:delete").Register("otel:after_delete", p.afterCallback),
		cb.Row().Before("gorm:row").Register("otel:before_row", p.beforeCallback),
		cb.Row().After("gorm:row").Register("otel:after_row", p.afterCallback),
		cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.beforeCallback),
		cb.Raw().After("gorm:raw").Register("otel:after_raw", p.afterCallback),
	)
}

func (p *OTELPlugin) beforeCallback(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	attrs := []attribute.KeyValue{
		p.config.DBSystem,
		attribute.String("service.name", p.config.ServiceName),
	}
	if table := db.Statement.Table; table != "" {
		attrs = append(attrs, attribute.String("db.table", table))
	}

	ctx, span := p.tracer.Start(ctx, "db."+db.Statement.Table,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	db.InstanceSet(startKey, time.Now())
	db.InstanceSet(spanKey, span)
	db.Statement.Context = ctx
}

func (p *OTELPlugin) afterCallback(db *gorm.DB) {
	v, ok := db.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	operation := operationName(db.Statement.SQL.String())
	span.SetName(operation)
	span.SetAttributes(
		semconv.DBStatement(p.sanitizeSQL(db.Statement.SQL.String())),
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
	)

	status := "success"
	switch {
	case db.Error == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(db.Error, gorm.ErrRecordNotFound):
		span.SetStatus(codes.Ok, "record not found")
	default:
		status = "error"
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if dbQueriesTotal == nil {
		return
	}
	start, _ := db.InstanceGet(startKey)
	startTime, _ := start.(time.Time)

	labels := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.status", status),
	)
	dbQueriesTotal.Add(db.Statement.Context, 1, labels)
	dbQueryDuration.Record(db.Statement.Context, time.Since(startTime).Seconds(), labels)
}

// operationName 从 SQL 提取操作类型
func operationName(sql string) string {
	s := strings.ToUpper(strings.TrimSpace(sql))
	switch {
	case s == "":
		return "db.unknown"
	case strings.HasPrefix(s, "SELECT"):
		return "db.select"
	case strings.HasPrefix(s, "INSERT"):
		return "db.insert"
	case strings.HasPrefix(s, "UPDATE"):
		return "db.update"
	case strings.HasPrefix(s, "DELETE"):
		return "db.delete"
	default:
		return "db.query"
	}
}

// sanitizeSQL 截断并隐藏敏感字面量
func (p *OTELPlugin) sanitizeSQL(sql string) string {
	if len(sql) > p.config.MaxSQLLength {
		sql = sql[:p.config.MaxSQLLength] + "..."
	}
	return sensitiveSQL.ReplaceAllString(sql, "$1='***'")
}

// WithOTELPlugin 为 GORM 添加 OpenTelemetry 插件
func WithOTELPlugin(db *gorm.DB, config PluginConfig) error {
	return db.Use(NewOTELPlugin(config))
}
