// Package methods implements the Ethereum provider methods a page can call
// and the terminal middleware that dispatches to them.
//
// Account disclosure is per origin: eth_requestAccounts walks the origin
// session through connect, reconnect and revoke. Signing is delegated to a
// Signer and read-only chain queries to the upstream node client.
package methods
