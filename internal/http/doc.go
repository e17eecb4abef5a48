// Package http provides the REST surface of the bridge service.
//
// Endpoints:
//   - Health: / and /health
//   - Sessions: /sessions, /sessions/:origin (GET, DELETE)
//   - Tabs: /tabs, /tabs/:id (DELETE)
//   - Chains: /chains
//   - Navigation: POST /navigation/decide (dry run, never prompts)
//
// An :origin parameter is either a full origin with its slashes escaped
// (https:%2F%2Fapp.uniswap.org) or a bare host. The router must have
// UseRawPath set for the escaped form to reach the handler intact.
//
// Example Usage:
//
//	handlers := http.NewHandlers(store, manager, guard, wallet, detector, logger)
//	router.UseRawPath = true
//	handlers.Register(router)
package http
