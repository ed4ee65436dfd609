package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor 服务端一元RPC拦截器
// 用于记录服务端RPC处理的日志和耗时
func UnaryServerInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		// 处理请求
		resp, err := handler(ctx, req)

		logCall(logger, info.FullMethod, time.Since(start), err)
		return resp, err
	}
}

// StreamServerInterceptor 服务端流式RPC拦截器，健康检查的 Watch 走这里
func StreamServerInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()

		err := handler(srv, ss)

		logCall(logger, info.FullMethod, time.Since(start), err)
		return err
	}
}

func logCall(logger *zap.Logger, method string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.Duration("duration", duration),
	}

	if err == nil {
		logger.Debug("grpc server call success", fields...)
		return
	}

	// 提取gRPC错误码
	st, _ := status.FromError(err)
	fields = append(fields, zap.String("code", st.Code().String()), zap.Error(err))

	// 根据错误类型选择日志级别
	switch st.Code() {
	case codes.InvalidArgument, codes.NotFound, codes.Canceled:
		logger.Info("grpc server call failed", fields...)
	default:
		logger.Error("grpc server call failed", fields...)
	}
}
