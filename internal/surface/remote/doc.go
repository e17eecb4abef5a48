// Package remote hosts bridge tabs whose page is rendered elsewhere, such
// as a mobile WebView, connected over a WebSocket.
//
// Every connection gets one tab. The renderer forwards what its page posts
// and its load events; the service answers with scripts to inject and with
// prompts the renderer shows to the user.
//
// Message Types (Renderer → Service):
//   - message: a string the page posted to window.__dappBridge
//   - load: the page finished loading url
//   - should_start: may the page load url (answered by should_start_result)
//   - navigate: address-bar input to open
//   - prompt_result: answer to a prompt, data or error "rejected"/"cancelled"
//   - ping: keep-alive
//
// Message Types (Service → Renderer):
//   - ready: tab id and the preload script to install
//   - inject, reload, close: page control
//   - prompt: account selection, confirmation, can_open or sign
//   - open_external, open_network_settings, dynamic_link: hand off to the
//     host app
//   - accounts_changed, window_info: chrome updates
//   - pong, error
//
// Example Usage:
//
//	handler := remote.NewHandler(manager, remote.DefaultConfig(), nil, metrics, logger)
//	router.GET("/tabs/connect", handler.HandleConnection)
package remote
