/*
Package tracing provides lightweight request tracing.

# Overview

Spans are created per HTTP request and per gRPC call, carry their trace id
in X-Trace-ID / X-Span-ID headers (x-trace-id / x-span-id metadata for gRPC)
and are written to the log by a buffered collector. A request without an
inbound trace id reuses its request id as the trace id.

# Usage

	tracer := tracing.New("chatgate", logger)
	defer tracer.Close()

	router.Use(middleware.RequestID(), tracing.HTTPMiddleware(tracer))

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)),
		grpc.ChainStreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
	)

	span, ctx := tracer.StartSpan(ctx, "operation")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

Completed spans log at debug; spans carrying an error log at warn. When the
buffer (1000 spans) is full new spans are dropped with a warning.
*/
package tracing
