// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for log shippers
//   - Development: colored console output
//
// Every long-lived object (tab, surface, session backend, phishing
// detector) receives a named child of the root logger so that a single
// log line can be traced back to the tab and origin that produced it.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	tabLog := logger.Component("tab", zap.String("tab_id", id))
//	tabLog.Info("navigation allowed", zap.String("url", url))
package logging
