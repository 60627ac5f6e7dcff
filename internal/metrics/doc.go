// Package metrics defines all Prometheus metrics for the comic library
// server.
//
// Metrics are grouped by subsystem:
//   - HTTP request metrics (observed by the router middleware)
//   - Index store query and transaction metrics
//   - Reconciliation pass metrics
//   - Filesystem scanner metrics
//   - Directory listing cache metrics
//   - Invalidation and watcher metrics
//   - Memory monitor metrics
//
// All metrics use the "clu_" prefix and are registered with the default
// registry via promauto at package load time.
package metrics
