// Package origin stores what each website origin has been granted.
//
// A Session is keyed by origin ("https://app.example") and records the
// account exposed to that site, the chain it was connected on, and whether
// the user has since revoked access. The Store caches every session in
// memory and writes through to a Backend (memory, one-file-per-origin, or
// a Redis hash) before any mutating call returns.
package origin
