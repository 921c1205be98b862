// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 初始化全局 logger，所有日志都会带上 service 字段。
// 各服务的 main 函数应在启动早期调用一次。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zerolog.New(os.Stderr).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回一个与请求上下文绑定的 logger。
// 如果上下文中存在有效的 trace，会自动附加 trace_id 字段，
// 便于在日志系统中与 Jaeger 链路互相跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l := zlog.With().Str("trace_id", sc.TraceID().String()).Logger()
		return &l
	}
	return &zlog.Logger
}

// WithContext 把一个定制过的 logger 存入 context，后续通过 Ctx 取回。
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}
