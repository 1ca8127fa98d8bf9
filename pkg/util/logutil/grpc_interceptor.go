package logutil

import (
	"context"
	"strconv"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/lk2023060901/chatrelay-go/pkg/log"
)

const (
	logLevelRPCMetaKey   = "log-level"
	clientRequestIDKey   = "client-request-id"
	clientRequestMsecKey = "client-request-msec"
)

// UnaryTraceLoggerInterceptor 在一元 RPC 调用的上下文中注入带 Trace 信息的 Logger。
func UnaryTraceLoggerInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	return handler(withLevelAndTrace(ctx), req)
}

// StreamTraceLoggerInterceptor 在流式 RPC 调用的上下文中注入带 Trace 信息的 Logger。
func StreamTraceLoggerInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	wrapped := grpc_middleware.WrapServerStream(ss)
	wrapped.WrappedContext = withLevelAndTrace(ss.Context())
	return handler(srv, wrapped)
}

// withLevelAndTrace 根据调用方 metadata 设置日志级别、请求 ID 与 TraceID。
//
// 说明：
//   - log-level：debug/info/warn/error，其余值忽略；
//   - client-request-id：合法的 TraceID 直接作为 traceID，否则作为普通字段记录；
//   - client-request-msec：调用方发起请求的毫秒时间戳。
func withLevelAndTrace(ctx context.Context) context.Context {
	newctx := ctx
	var traceID trace.TraceID
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if levels := md.Get(logLevelRPCMetaKey); len(levels) >= 1 {
			var level zapcore.Level
			if err := level.UnmarshalText([]byte(levels[0])); err == nil {
				switch level {
				case zapcore.DebugLevel:
					newctx = log.WithDebugLevel(ctx)
				case zapcore.InfoLevel:
					newctx = log.WithInfoLevel(ctx)
				case zapcore.WarnLevel:
					newctx = log.WithWarnLevel(ctx)
				case zapcore.ErrorLevel:
					newctx = log.WithErrorLevel(ctx)
				}
			}
		}
		if requestID := md.Get(clientRequestIDKey); len(requestID) >= 1 {
			var err error
			traceID, err = trace.TraceIDFromHex(requestID[0])
			if err != nil {
				newctx = log.WithFields(newctx, zap.String(clientRequestIDKey, requestID[0]))
			}
		}
	}
	if msec, ok := clientRequestUnixmsec(ctx); ok {
		newctx = log.WithFields(newctx, zap.Int64("clientRequestUnixmsec", msec))
	}

	if !traceID.IsValid() {
		traceID = trace.SpanContextFromContext(newctx).TraceID()
	}
	if traceID.IsValid() {
		newctx = log.WithTraceID(newctx, traceID.String())
	}
	return newctx
}

func clientRequestUnixmsec(ctx context.Context) (int64, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return -1, false
	}
	values := md.Get(clientRequestMsecKey)
	if len(values) < 1 {
		return -1, false
	}
	msec, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return -1, false
	}
	return msec, true
}
