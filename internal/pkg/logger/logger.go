// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base zerolog.Logger

// Init 配置全局 zerolog 实例。
// 所有服务统一使用 unix 时间戳和 service 字段，方便日志平台聚合。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	base = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// L 返回全局 logger。
func L() *zerolog.Logger {
	return &base
}

// Ctx 返回一个绑定了追踪上下文的 logger。
// 当 ctx 中存在有效 Span 时，自动附加 trace_id / span_id 字段，
// 这样业务日志可以和 Jaeger 里的调用链互相关联。
func Ctx(ctx context.Context) *zerolog.Logger {
	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		return &base
	}
	l := base.With().
		Str("trace_id", span.TraceID().String()).
		Str("span_id", span.SpanID().String()).
		Logger()
	return &l
}
