/*
Package monitoring provides Prometheus metrics for the bridge server.

# Overview

Collectors cover the REST surface (latency, size, status), the provider
pipeline (requests by method and outcome), navigation guard decisions,
phishing list refreshes, user prompts, live tabs and stored origin sessions.

# Usage

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics)
	// ... handle request ...
	timer.Stop("eth_requestAccounts", "result")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
