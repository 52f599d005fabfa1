// Package server assembles the reference hub's HTTP server.
//
// Routes:
//   - GET /              service banner
//   - GET /health        connection, session and window counts
//   - GET /windows       window registry, optionally ?session_id=
//   - GET /metrics       Prometheus exposition
//   - GET /metrics/json  metrics snapshot
//   - GET /ws            window sockets (path from the transport config)
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Run()
//	defer srv.Shutdown(ctx)
package server
