// Package server wires the bridge service together.
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger and a private metrics registry
//  3. Open the origin session backend (memory, file or redis)
//  4. Build the wallet from its chain registry
//  5. Start the phishing detector and the upstream RPC client
//  6. Create the tab manager
//  7. Setup HTTP routes, the renderer WebSocket and middleware
//  8. Graceful shutdown: stop listening, close tabs, release the backend
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Run()
//	defer srv.Shutdown(context.Background())
package server
