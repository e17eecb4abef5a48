// Package config provides 12-factor configuration for the bridge server.
//
// Configuration is loaded from environment variables with defaults.
// CLI flags in cmd/server override a subset of them.
//
// Configuration Sections:
//   - Server: HTTP listen address
//   - Logging: level and output format
//   - RateLimit: per-IP limits on the REST surface
//   - Sessions: origin session backend (memory, file, redis)
//   - Phishing: list source, refresh interval, disk cache
//   - Wallet: wallet identity, chain registry file, visible accounts
//   - Bridge: provider name, prompt timeout, dynamic-link hosts
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
