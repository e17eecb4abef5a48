// Package inpage holds the provider script injected into every page before
// its own scripts run. It defines window.ethereum and relays requests to
// the native channel (window.__dappBridge or window.ReactNativeWebView).
package inpage

import (
	_ "embed"
)

//go:embed shim.js
var source string

// ConfigPlaceholder is replaced with a JS object literal of Config.
const ConfigPlaceholder = "__DAPP_BRIDGE_CONFIG__"

// Config is passed to the script.
type Config struct {
	// Name tags every message so responses reach the right provider.
	Name           string `json:"name"`
	ChainID        string `json:"chainId,omitempty"`
	ForwardConsole bool   `json:"forwardConsole"`
}

// Source returns the script with the placeholder still in place.
func Source() string {
	return source
}
