// Package config loads and validates application configuration from
// environment variables, with optional overrides from a local .env file.
//
// Configuration keys:
//   - LIBRARY_ROOTS: comma-separated list of library root directories
//   - STAGING_DIR: active-downloads staging folder, excluded from indexing
//   - DATABASE_DIR: directory holding the SQLite index file
//   - CACHE_TTL, CACHE_CAPACITY: directory listing cache tuning
//   - REBUILD_INTERVAL: periodic full reconciliation interval
//   - PORT, METRICS_PORT, METRICS_ENABLED, WATCH_ENABLED
//
// All paths are normalized to absolute, forward-slash form at load time;
// every path crossing a package boundary in this codebase uses that form.
package config
