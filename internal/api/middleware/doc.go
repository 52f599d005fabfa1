// Package middleware provides the reference hub's HTTP middleware.
//
//   - CORS: windows load from file:// and custom schemes, so any origin is
//     accepted and WebSocket upgrades pass through.
//   - RateLimit: per-IP token buckets; buckets of idle clients are evicted.
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig(), logger))
package middleware
