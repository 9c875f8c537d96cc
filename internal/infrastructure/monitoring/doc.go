/*
Package monitoring provides Prometheus metrics for the gateway.

# Overview

Metrics owns a private registry so tests and multiple servers never collide
on the global one. One instance serves every layer:

- HTTP request metrics (latency, throughput, size) per registered route
- Pool metrics (acquire results and wait, warm-ups, releases, interactions,
  sessions per state), satisfying pool.Metrics
- Gateway metrics (completions per model and final state, stage timings,
  reply cache lookups), satisfying gateway.Metrics
- gRPC call metrics and WebSocket connection metrics
- Go runtime, process and uptime collectors

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	p := pool.New(cfg, factory, logger).WithMetrics(metrics)
	gw, _ := gateway.New(gateway.Options{Pool: p, Metrics: metrics, ...})

The JSON stats endpoint reads Snapshot.
*/
package monitoring
