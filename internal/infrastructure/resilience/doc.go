/*
Package resilience provides a circuit breaker for outbound calls.

The bridge depends on two remote services it does not control: the host
serving the phishing list and the chain RPC nodes used by read-only
provider methods. Both are wrapped in a Breaker so a dead upstream fails
fast and navigation or page requests are not held hostage by it.

# Usage

	breaker := resilience.New("phishing-list", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	err := breaker.Run(ctx, func(ctx context.Context) error {
		return fetch(ctx)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open

Caller cancellation (context.Canceled) is not counted as a failure.
*/
package resilience
