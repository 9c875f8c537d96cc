/*
Package pool owns the automated browser sessions used to reach the chat site.

A Session wraps a Driver (warm, interact, teardown) and moves through

	cold -> warming -> ready <-> busy -> degraded -> ready | closed

The Pool hands a ready Session to at most one caller at a time, queues
waiters in FIFO order, spaces dispatches by a minimum interval (the site's
implicit rate limit) and withholds sessions that failed MaxFailures times in a
row until a background re-warm succeeds. Warm-ups run through a circuit
breaker so a blocked site fails requests fast instead of queueing them.

	p := pool.New(pool.DefaultConfig(), factory, logger)
	s, err := p.Acquire(ctx, 0)
	if err != nil {
		return err
	}
	reply, err := s.Interact(ctx, script)
	p.Release(s, pool.OutcomeFor(err))
*/
package pool
