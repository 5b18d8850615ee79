// Package audit exposes read-only views of the three tiers over HTTP.
//
// # Endpoints
//
//   - GET  /audit/objects: object-store inventory with attributes and lifecycle state.
//   - GET  /audit/objects/:key: one object's attributes.
//   - GET  /audit/diff/archive: objects vs archive files.
//   - GET  /audit/diff/local?path=: local files vs objects.
//   - GET  /audit/plan/upload?path=: the upload work set for path.
//   - GET  /audit/plan/relay: the relay work set.
//   - POST /audit/refresh[?path=]: drop cached inventories.
//
// Inventories are memoized in a reconcile.Cache for server.cache_ttl_seconds.
// Nothing here mutates a tier; transfers only run from the CLI.
package audit
