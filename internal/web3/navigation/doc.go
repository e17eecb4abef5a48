// Package navigation decides every URL transition a tab attempts.
//
// Decide classifies a URL in a fixed order: internal about:/blob: pages,
// phishing list hits, deep links the OS can open, dynamic links, and plain
// navigation. Resolve applies a decision, prompting through a Confirmer
// and handing URLs off to the OS opener or the dynamic-link handler.
//
// The package also owns the URL helpers the bridge and the address bar
// share (OriginOf, ClearURL, NormalizeInput).
package navigation
