/*
Package resilience guards calls to the target chat site.

# Breaker

A three-state circuit breaker (closed, open, half-open). The session pool runs
every warm-up through one breaker so a blocked or changed site stops absorbing
new browsing contexts; while it is open, callers get an immediate
ErrCircuitOpen instead of waiting for a warm-up that cannot succeed.

	breaker := resilience.New("site-warm", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		return driver.Warm(ctx)
	})

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure] -> Open

# Retry

Retry runs a function with exponential backoff and full jitter, stopping early
on context cancellation or when the error is marked permanent.
*/
package resilience
