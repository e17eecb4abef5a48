// Package jsonrpc is the provider's request pipeline: the wire types, an
// ordered middleware engine, and the logging and metrics middleware.
//
// Every request that enters Engine.Handle leaves with exactly one of a
// result or an error. Requests nobody answered get -32603 "Method not
// handled"; internal faults are logged and never leak to the page.
package jsonrpc
