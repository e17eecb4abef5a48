// Package bridge connects a rendered dApp page to the wallet.
//
// A Tab owns one page: it relays provider requests from the page through a
// JSON-RPC engine built from the method table, injects responses and
// provider events back as scripts, and routes every navigation through the
// navigation guard. The page itself is behind a Surface, which may be an
// in-process headless runtime or a remote renderer on a WebSocket.
//
// Example Usage:
//
//	manager := bridge.NewManager(opts, metrics, logger)
//	tab := manager.Open("https://app.uniswap.org", bridge.Host{Surface: s})
//	defer manager.Close(tab.ID())
package bridge
