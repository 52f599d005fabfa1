/*
Package resilience provides circuit breaker implementation for graceful degradation.

# Overview

This package implements the circuit breaker pattern. The bus puts every
socket dial behind one, so a window whose hub is down fails fast instead of
piling up dial attempts.

# Features

- Three-state circuit breaker (Closed, Open, Half-Open)
- ForDial preset with zap-logged state changes
- Context-aware Execute; cancelled calls are not counted as failures
- Generic Call for requests that return a value
- No retries: callers see ErrCircuitOpen and decide

# Usage

	// Create a circuit breaker
	breaker := resilience.New("service", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// Execute request through breaker
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		conn, _, err := dialer.DialContext(ctx, url, nil)
		...
	})

# States

- Closed: Normal operation, requests pass through
- Open: Service unavailable, requests fail immediately
- Half-Open: Testing if service recovered, limited requests allowed

# Pattern

The circuit breaker transitions between states based on success/failure rates:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
