// Package main is the entry point for the dApp bridge server.
//
// The server hosts in-app browser tabs for a mobile wallet. Each tab
// injects an EIP-1193 provider into the page it shows and answers the
// page's JSON-RPC requests from the wallet's state, with per-origin
// sessions, a phishing-aware navigation guard and upstream RPC
// pass-through.
//
// Architecture:
//
//	Renderer (WebView) ⇄ WebSocket /tabs/connect ⇄ Tab ⇄ Method table → Wallet
//	                                                    ↘ Navigation guard → Phishing list
//	                                                    ↘ Upstream RPC
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -sessions redis
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
//	# Open a page headless and print what the provider saw
//	./server -probe app.uniswap.org
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
