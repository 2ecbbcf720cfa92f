package remote

import (
	"context"
	"path"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	pb "github.com/sushant-115/stratadb/api/proto"
)

// UnaryInterceptor records a span and the RPC metrics of every call. A reply
// with a non-zero status counts as an error.
func (s *Server) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		method := path.Base(info.FullMethod)
		ctx, span, startTime := s.startMetricsAndTrace(ctx, method)

		resp, err := handler(ctx, req)

		code, desc := otelcodes.Ok, "Success"
		grpcCode := status.Code(err).String()
		reply, _ := resp.(*pb.Reply)
		switch {
		case err != nil:
			code, desc = otelcodes.Error, err.Error()
		case reply != nil && reply.Status != 0:
			code, desc = otelcodes.Error, reply.Message
			span.SetAttributes(attribute.Int("stratadb.status", int(reply.Status)))
			s.metrics.EngineErrorsCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("grpc.method", method),
				attribute.Int("status", int(reply.Status)),
			))
			s.logger.Debug("remote call failed", zap.String("method", method),
				zap.Int32("status", reply.Status), zap.String("message", reply.Message))
		}
		s.endMetricsAndTrace(ctx, span, startTime, method, grpcCode, code, desc)
		return resp, err
	}
}

// startMetricsAndTrace begins the telemetry recording for a method.
func (s *Server) startMetricsAndTrace(ctx context.Context, method string) (context.Context, trace.Span, time.Time) {
	startTime := time.Now()
	attrs := metric.WithAttributes(
		attribute.String("grpc.service", serviceName),
		attribute.String("grpc.method", method),
	)
	s.metrics.ActiveRpcsUpDownCounter.Add(ctx, 1, attrs)
	s.metrics.RpcsStartedCounter.Add(ctx, 1, attrs)

	ctx, span := s.tracer.Start(ctx, serviceName+"/"+method, trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("grpc.service", serviceName),
			attribute.String("grpc.method", method),
		))
	return ctx, span, startTime
}

// endMetricsAndTrace completes the telemetry recording for a method.
func (s *Server) endMetricsAndTrace(ctx context.Context, span trace.Span, startTime time.Time, method, grpcCode string,
	code otelcodes.Code, desc string) {
	latency := time.Since(startTime).Milliseconds()
	span.SetStatus(code, desc)
	span.End()

	s.metrics.ActiveRpcsUpDownCounter.Add(ctx, -1, metric.WithAttributes(
		attribute.String("grpc.service", serviceName),
		attribute.String("grpc.method", method),
	))
	set := attribute.NewSet(
		attribute.String("grpc.service", serviceName),
		attribute.String("grpc.method", method),
		attribute.String("grpc.code", grpcCode),
		attribute.String("status", code.String()),
	)
	s.metrics.RpcLatencyHistogram.Record(ctx, latency, metric.WithAttributeSet(set))
	s.metrics.RpcsHandledCounter.Add(ctx, 1, metric.WithAttributeSet(set))
}
