// Package handlers contains the HTTP request handlers. They are thin
// adapters over the library facade: parameter parsing, JSON encoding, and
// status codes live here; all listing, search, and rebuild logic lives in
// the library and below.
package handlers
