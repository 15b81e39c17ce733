// Package client is a resty-based client for the scratchpad REST API.
//
// Calls go through a rate limiter and a circuit breaker, so a batch of
// scripts against an unreachable server fails fast after a few attempts.
//
//	c := client.New(client.Options{BaseURL: "http://localhost:8000"})
//	resp, err := c.Run(ctx, protocol.RunRequest{Source: src, TimeoutMs: 5000})
package client
