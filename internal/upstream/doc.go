// Package upstream forwards read-only JSON-RPC calls (balances, blocks,
// eth_call) to the node of the chain a site is connected to.
package upstream
