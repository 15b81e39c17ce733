/*
Package resilience provides a circuit breaker for calls to remote services.

A breaker opens after FailureThreshold consecutive failures and rejects
calls with ErrCircuitOpen until Cooldown has passed. It then admits up to
Probes calls; that many successes close it again, any failure reopens it.

	breaker := resilience.New("server", resilience.Settings{
		FailureThreshold: 3,
		Cooldown:         10 * time.Second,
	})

	resp, err := resilience.Call(ctx, breaker, func(ctx context.Context) (*Response, error) {
		return client.Do(ctx, req)
	})

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[successes]-> Closed
	                                              |
	                                          [failure]
	                                              v
	                                             Open
*/
package resilience
