/*
Package monitoring provides Prometheus metrics for bus clients and the hub.

# Overview

Every Metrics value owns its own registry, so several buses (or a bus and a
hub) can live in one process, including in tests, without duplicate
registration panics. All Record/Inc/Set methods are safe on a nil *Metrics,
which lets components run without metrics wired in.

# Metrics

- Envelopes in/out by topic, heartbeats by direction
- Dropped emits by reason, malformed frames, handler failures by topic
- Client errors by kind (connectivity, malformed, handler, identity, encode)
- Connection state gauge, pending requests, request latency by outcome
- Hub: HTTP requests, WebSocket connections, windows, window operations

# Usage

	metrics := monitoring.NewMetrics()

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "wm.window.get_state")
	// ... wait for the reply ...
	timer.Stop("ok")
*/
package monitoring
